package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	bookingdb "ms-booking/internal/booking/db"
	rediswrap "ms-booking/internal/booking/redis"
	"ms-booking/internal/checkin"
	"ms-booking/internal/checkin/checkin_api"
	checkindb "ms-booking/internal/checkin/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/sse"
)

// subscribeHoldExpiry listens for Redis keyspace expiry events and turns
// each lapsed booking hold into an occupancy refresh. The booking row is
// not touched; seat counting already ignores aged pending rows.
func subscribeHoldExpiry(rdb *redis.Client, bookingService *booking.Service, log *logger.Logger) {
	ctx := context.Background()

	val, err := rdb.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		log.Error("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
	} else {
		log.Info("REDIS", fmt.Sprintf("Current keyspace notifications setting: %v", val))
		if len(val) < 2 || !strings.Contains(val[1].(string), "x") || !strings.Contains(val[1].(string), "E") {
			log.Warn("REDIS", "Keyspace notifications not properly configured for expiry events!")
		}
	}

	pubsub := rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	log.Info("REDIS", fmt.Sprintf("Subscribed to Redis keyevent expired notifications (DB %d)", rdb.Options().DB))

	go func() {
		for msg := range pubsub.Channel() {
			occurrenceID, bookingID, ok := rediswrap.ParseHoldKey(msg.Payload)
			if !ok {
				continue
			}
			log.Info("HOLD_EXPIRY", fmt.Sprintf("Hold lapsed for booking %s on occurrence %s", bookingID, occurrenceID))
			bookingService.HandleHoldExpiry(ctx, occurrenceID, bookingID)
		}
	}()
}

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	_, err = redisClient.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result()
	if err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		log.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	booking.InitStripe()

	topics := kafka.TopicSet{
		BookingCreated:   cfg.Kafka.Topics.BookingCreated,
		BookingCancelled: cfg.Kafka.Topics.BookingCancelled,
		BookingCheckedIn: cfg.Kafka.Topics.BookingCheckedIn,
		OccupancyStatus:  cfg.Kafka.Topics.OccupancyStatus,
	}
	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, topics)
	log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for brokers %v", cfg.Kafka.Brokers))

	requiredTopics := []string{
		topics.BookingCreated,
		topics.BookingCancelled,
		topics.BookingCheckedIn,
		topics.OccupancyStatus,
	}
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}

	occupancyEmitter := sse.NewOccupancyEmitter()
	store := &bookingdb.DB{Bun: bunDB}

	bookingService := booking.NewService(
		store,
		rediswrap.NewRedis(redisClient),
		kafkaProducer,
		occupancyEmitter,
		cfg.Booking.HoldWindow,
		log,
	)

	checkinService := checkin.NewService(
		store,
		&checkindb.DB{Bun: bunDB},
		kafkaProducer,
		bookingService,
		cfg.Booking.CheckinCodeTTL,
		cfg.Booking.CodeLength,
		log,
	)

	bookingHandler := &booking_api.Handler{
		BookingService: bookingService,
		SSE:            occupancyEmitter,
		Logger:         log,
	}

	checkinHandler := &checkin_api.Handler{
		CheckinService: checkinService,
		PublicURL:      cfg.Server.PublicURL,
		Logger:         log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	// The occupancy stream lives outside the OIDC group because
	// EventSource cannot set headers; the handler authenticates the
	// subscriber from the token query parameter itself.
	r.Get("/api/occurrences/{occurrenceId}/seats", bookingHandler.SeatsLeft)
	r.Get("/api/occurrences/{occurrenceId}/occupancy/stream", bookingHandler.StreamOccupancy)
	log.Info("ROUTER", "Availability endpoints registered")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		log.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/occurrences/{occurrenceId}", func(r chi.Router) {
				r.Post("/bookings", bookingHandler.Reserve)
				r.Post("/checkin", checkinHandler.SelfCheckin)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(models.RoleExpert))
					r.Post("/checkin/operator", checkinHandler.OperatorCheckin)
					r.Post("/checkin-tokens", checkinHandler.IssueToken)
				})
			})
			log.Info("ROUTER", "Occurrence routes registered under /api/occurrences")

			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", bookingHandler.ListBookings)
				r.Get("/{bookingId}", bookingHandler.GetBooking)
				r.Delete("/{bookingId}", bookingHandler.Cancel)
				r.Post("/{bookingId}/payment-intent", bookingHandler.CreatePaymentIntent)
			})
			log.Info("ROUTER", "Booking routes registered under /api/bookings")
		})
	})

	// No write timeout: the occupancy SSE stream holds its connection
	// open for as long as the client watches.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	log.Info("REDIS", "Starting hold expiry subscription")
	subscribeHoldExpiry(redisClient, bookingService, log)

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}
}
