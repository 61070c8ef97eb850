package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// requestTime logs the handling time of every request.
func requestTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		reqTime := time.Since(start)
		logrus.Infof("request time: %v %v: %v", c.Request.Method, c.FullPath(), reqTime)
	}
}
