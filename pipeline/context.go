package pipeline

import "github.com/gin-gonic/gin"

const contextKey = "pipeline"

// SetToContext injects the processor for the webhook controllers, mirroring
// how the DB reaches handlers.
func SetToContext(p *Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKey, p)
		c.Next()
	}
}

func FromContext(c *gin.Context) *Processor {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Processor)
	return p
}
