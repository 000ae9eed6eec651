package middleware

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/attendance-api/internal/models"
	"github.com/campuskit/attendance-api/internal/service"
)

// Activity records an activity log entry after successful mutations. The
// write goes through the activity service's queue, off the request path.
func Activity(activitySvc *service.ActivityService, action, objectType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if activitySvc == nil || c.Writer.Status() >= 400 {
			return
		}

		var actorID *string
		if claimsValue, ok := c.Get(ContextUserKey); ok {
			if claims, ok := claimsValue.(*models.JWTClaims); ok {
				actorID = &claims.UserID
			}
		}

		objectID := c.Param("id")
		details, _ := json.Marshal(map[string]interface{}{
			"path":   c.FullPath(),
			"method": c.Request.Method,
			"status": c.Writer.Status(),
		})

		ip := c.ClientIP()
		log := models.ActivityLog{
			ActorID:    actorID,
			Action:     action,
			ObjectType: objectType,
			Details:    string(details),
			IPAddress:  &ip,
		}
		if objectID != "" {
			log.ObjectID = &objectID
		}
		activitySvc.Record(log)
	}
}
