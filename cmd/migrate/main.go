package main

import (
	"flag"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/config"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/devserver"
)

func main() {
	cfgFile := flag.String("config", "", "config file (default is ./config.yml)")
	flag.Parse()

	// 加载配置
	if err := config.InitViper(viper.GetViper(), *cfgFile); err != nil {
		logrus.Fatalf("Failed to read config: %v", err)
	}
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to init logger: %v", err)
	}

	// 连接数据库
	db, err := devserver.OpenDB(cfg.DevServer.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	logrus.Info("Starting database migration...")
	if err := devserver.Migrate(db); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}
	logrus.Info("Database migration completed successfully!")
}
