package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/account"
	"github.com/hearthchat/server/audit"
	"github.com/hearthchat/server/cache"
	"github.com/hearthchat/server/config"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/scheduler"
	"github.com/hearthchat/server/social"
	"go.uber.org/zap"
)

// Deps carries everything the REST routes need.
type Deps struct {
	Accounts  *account.Service
	Social    *social.Service
	Audit     *audit.Service
	Scheduler *scheduler.Scheduler
	Cache     cache.Cache
	Security  config.SecurityConfig
	Server    config.ServerConfig
	Logger    *zap.Logger
}

// Register mounts the REST API on api, which is normally the /api group.
func Register(api *gin.RouterGroup, d Deps) {
	authH := NewAuthHandler(d.Accounts, d.Cache, d.Security, d.Logger)
	userH := NewUserHandler(d.Accounts, d.Social, d.Logger)
	friendH := NewFriendHandler(d.Social, d.Audit, d.Logger)
	adminH := NewAdminHandler(d.Accounts, d.Social, d.Scheduler, d.Logger)
	auth := mw.Auth(d.Security, d.Cache)

	authG := api.Group("/auth")
	authG.POST("/signup", authH.Signup)
	authG.POST("/login", authH.Login)
	authG.POST("/logout", auth, authH.Logout)
	authG.POST("/refresh", auth, authH.Refresh)

	usersG := api.Group("/users", auth)
	usersG.GET("", userH.List)
	usersG.GET("/me", userH.Me)
	usersG.PUT("/me", userH.UpdateMe)

	friendsG := usersG.Group("/friends")
	friendsG.GET("", friendH.ListFriends)
	friendsG.GET("/requests", friendH.ListRequests)
	friendsG.GET("/blocked", friendH.ListBlocked)
	friendsG.POST("/requests/add/:id", friendH.SendRequest)
	friendsG.PUT("/requests/accept/:id", friendH.AcceptRequest)
	friendsG.PUT("/requests/refuse/:id", friendH.RefuseRequest)
	friendsG.PUT("/block/:id", friendH.Block)
	friendsG.DELETE("/:id", friendH.Remove)

	adminG := api.Group("/admin")
	adminG.Use(mw.IPWhitelist(d.Server.AdminIPs), AdminAuth(d.Server.AdminKey))
	adminG.GET("/metrics", adminH.Metrics)
	adminG.POST("/accounts/:id/ban", adminH.BanAccount)
}
