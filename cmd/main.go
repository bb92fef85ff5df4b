package main

import (
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"lyink/relay-service/internal/httpapi"
	"lyink/relay-service/internal/presence"
	"lyink/relay-service/internal/repository"
	"lyink/relay-service/internal/service"
	"lyink/relay-service/internal/ws"
)

func main() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatalf("Failed to read config file: %v", err)
	}

	logger := logrus.New()
	logLevel := viper.GetString("logging.level")
	logFormat := viper.GetString("logging.format")

	switch logLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if logFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	dbHost := viper.GetString("database.host")
	dbPort := viper.GetInt("database.port")
	dbUser := viper.GetString("database.user")
	dbPassword := viper.GetString("database.password")
	dbName := viper.GetString("database.dbname")
	sslmode := viper.GetString("database.sslmode")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == 0 {
		dbPort = 5432
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "lyink"
	}
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	logger.Info("Connected to PostgreSQL database")

	repo := repository.NewMessageRepository(db)
	if err := repo.InitializeTables(); err != nil {
		logger.Fatalf("Failed to initialize database tables: %v", err)
	}

	registry := presence.NewRegistry()
	readSvc := service.NewReadService(repo, registry, logger)
	deliverySvc := service.NewDeliveryService(repo, registry, readSvc, logger)
	typingSvc := service.NewTypingService(registry)
	contactSvc := service.NewContactService(repo, logger)

	wsCfg := ws.DefaultConfig()
	if d := viper.GetDuration("ws.write_wait"); d > 0 {
		wsCfg.WriteWait = d
	}
	if d := viper.GetDuration("ws.pong_wait"); d > 0 {
		wsCfg.PongWait = d
	}
	if d := viper.GetDuration("ws.ping_period"); d > 0 {
		wsCfg.PingPeriod = d
	}
	if n := viper.GetInt64("ws.max_message_size"); n > 0 {
		wsCfg.MaxMessageSize = n
	}
	wsHandler := ws.NewHandler(registry, deliverySvc, readSvc, typingSvc, logger, wsCfg)

	app := fiber.New()
	app.Use(fiberlogger.New())

	httpapi.NewHandler(deliverySvc, contactSvc, logger).Register(app)

	app.Use("/ws", ws.Upgrade)
	app.Get("/ws", websocket.New(wsHandler.Handle))

	port := viper.GetString("server.port")
	if port == "" {
		port = "8080"
	}
	host := viper.GetString("server.host")
	if host == "" {
		host = "0.0.0.0"
	}
	address := net.JoinHostPort(host, port)

	go func() {
		logger.Infof("Starting server on %s", address)
		if err := app.Listen(address); err != nil {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownTimeout := viper.GetDuration("server.shutdown_timeout")
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Errorf("Error shutting down server: %v", err)
	}

	logger.Info("Server exited")
}
