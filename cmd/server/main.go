package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"checkpoint-gateway/backend/internal/api"
	"checkpoint-gateway/backend/internal/config"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		logrus.Fatalf("load environment: %v", err)
	}

	cfg := config.FromEnv()
	logrus.SetLevel(cfg.LogLevel)

	server, err := api.NewServer(api.Config{
		Engine:                cfg.Engine,
		ClientIP:              cfg.ClientIP,
		TrackCheckpointEvents: cfg.TrackCheckpointEvents,
		DBPath:                cfg.DBPath,
		AllowedOrigins:        cfg.AllowedOrigins,
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer server.Close()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	logrus.Infof("starting checkpoint gateway on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
