package clientip

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Resolver derives the originating network address of an inbound request.
type Resolver interface {
	Resolve(c *gin.Context) string
}

// GinResolver reports gin's ClientIP. Forwarding headers are honoured only
// when the router's trusted proxies include the peer address.
// Fallback replaces loopback or unknown addresses when set.
type GinResolver struct {
	Fallback string
}

// Resolve implements Resolver.
func (g GinResolver) Resolve(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" || isLoopback(ip) {
		if g.Fallback != "" {
			logrus.WithFields(logrus.Fields{
				"resolved": ip,
				"fallback": g.Fallback,
			}).Debug("using fallback client ip")
			return g.Fallback
		}
	}
	return ip
}

// StaticResolver always reports the same address.
type StaticResolver string

// Resolve implements Resolver.
func (s StaticResolver) Resolve(*gin.Context) string {
	return string(s)
}

// New returns a StaticResolver when static is set, otherwise a GinResolver.
func New(static, fallback string) Resolver {
	if static = strings.TrimSpace(static); static != "" {
		return StaticResolver(static)
	}
	return GinResolver{Fallback: strings.TrimSpace(fallback)}
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
