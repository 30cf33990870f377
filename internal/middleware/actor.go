package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
	"github.com/noah-isme/exam-seating-api/pkg/logger"
	"github.com/noah-isme/exam-seating-api/pkg/response"
)

// ActorHeader carries the id of the operator issuing the request. Identity
// is resolved by the gateway in front of this service.
const ActorHeader = "X-Actor-ID"

const maxActorLength = 128

// Actor requires an actor id on the request and stores it in the context.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing "+ActorHeader+" header"))
			c.Abort()
			return
		}
		if len(actor) > maxActorLength {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid "+ActorHeader+" header"))
			c.Abort()
			return
		}
		c.Set(logger.ActorContextKey, actor)
		c.Next()
	}
}

// OptionalActor attaches the actor id when present but does not block.
func OptionalActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(ActorHeader)); actor != "" && len(actor) <= maxActorLength {
			c.Set(logger.ActorContextKey, actor)
		}
		c.Next()
	}
}

// ActorID returns the actor stored by Actor or OptionalActor.
func ActorID(c *gin.Context) string {
	return c.GetString(logger.ActorContextKey)
}
