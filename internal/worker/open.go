package worker

import (
	"context"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/database"
	"coffeeshop/internal/sink"
	"coffeeshop/internal/wallet"

	"github.com/sirupsen/logrus"
)

// SinkOpener builds the sinks of one worker. Tests substitute fakes.
type SinkOpener func(ctx context.Context, cfg *config.Config) ([]sink.Sink, error)

// OpenSinks opens every configured destination, in dispatch order: file,
// database, REST, Redis, Kafka. If one fails, the ones already opened are
// closed.
func OpenSinks(ctx context.Context, cfg *config.Config) (sinks []sink.Sink, err error) {
	defer func() {
		if err != nil {
			closeAll(sinks, logrus.NewEntry(logrus.StandardLogger()))
			sinks = nil
		}
	}()

	if cfg.OutputFile != "" {
		f, err := sink.NewFile(cfg.OutputFile)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, f)
	}

	if cfg.Database.Enabled() {
		sess, err := OpenDatabase(ctx, cfg.Database)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, sink.NewDatabase(sess, cfg.Database.Table, cfg.Database.Column, cfg.Database.BatchSize))
	}

	if cfg.REST.URL != "" {
		sinks = append(sinks, sink.NewREST(cfg.REST.URL, time.Duration(cfg.REST.TimeoutMS)*time.Millisecond))
	}

	if cfg.Redis.Addr != "" {
		sinks = append(sinks, sink.NewRedis(cfg.Redis))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, sink.NewKafka(cfg.Kafka))
	}
	return sinks, nil
}

// OpenDatabase connects through the wallet bootstrap when a credentials file
// is configured and directly otherwise.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.Session, error) {
	if cfg.CloudCredentialsFile != "" {
		return wallet.New(cfg).Bootstrap(ctx, cfg.CloudCredentialsFile, cfg.Username, cfg.Password, cfg.Target())
	}
	return database.Open(ctx, cfg)
}
