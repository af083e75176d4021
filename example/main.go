package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/freekieb7/biu/handler"
	"github.com/freekieb7/biu/http"
	"github.com/freekieb7/biu/telemetry"
	"github.com/freekieb7/biu/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const name = "github.com/freekieb7/biu/example/dice"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
	logger = telemetry.Logger(name)
)

func main() {
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

func run() error {
	// Handle SIGINT (CTRL+C) gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "biu-dice",
		Endpoint:    "0.0.0.0:4317",
		Insecure:    true,
	})
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	rollCnt, err := meter.Int64Counter("dice.rolls",
		metric.WithDescription("The number of rolls by roll value"),
		metric.WithUnit("{roll}"))
	if err != nil {
		return err
	}

	server, err := http.New(http.WithName("dice"), http.WithAddr(":8080"), http.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := routes(server, rollCnt); err != nil {
		return err
	}

	serverErrorChannel := make(chan error, 1)
	go func() {
		serverErrorChannel <- server.ListenAndServe()
	}()

	// Wait for interruption.
	select {
	case err := <-serverErrorChannel:
		// Error when starting the server.
		return err
	case <-ctx.Done():
		// Stop receiving signal notifications as soon as possible.
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serverErrorChannel; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// routes registers the dice routes on server.
func routes(server *http.Server, rollCnt metric.Int64Counter) error {
	headers := http.DefaultHeaders(map[string]string{"server": "biu"})

	err := server.Handle(http.MethodGet, "/", http.Chain(http.HandlerFunc(func(req *http.Request, res *http.Response) error {
		violations := validation.ValidateMap(
			map[string]any{
				"player": req.Query.Get("player"),
			},
			map[string][]string{
				"player": {"required", "max:255", "min:3"},
			},
		)

		if !violations.IsEmpty() {
			res.WithStatus(http.StatusUnprocessableEntity).WithJSON(violations)
		} else {
			res.WithText("ok")
		}
		return nil
	}), headers))
	if err != nil {
		return err
	}

	err = server.Handle(http.MethodGet, "/roll", http.Chain(http.HandlerFunc(func(req *http.Request, res *http.Response) error {
		ctx, span := tracer.Start(req.Context(), "roll")
		defer span.End()

		roll := 1 + rand.Intn(6)
		logger.InfoContext(ctx, "Anonymous player is rolling the dice", "result", roll)

		rollValueAttr := attribute.Int("roll.value", roll)
		span.SetAttributes(rollValueAttr)
		rollCnt.Add(ctx, 1, metric.WithAttributes(rollValueAttr))

		res.WithText(strconv.Itoa(roll) + "\n")
		return nil
	}), headers, http.AccessLog(logger)))
	if err != nil {
		return err
	}

	return server.Router().Group("/v1", func(group *http.Router) error {
		if err := group.GET("/echo", handler.Echo()); err != nil {
			return err
		}
		return group.POST("/echo", handler.Echo())
	})
}
