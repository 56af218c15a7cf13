// Command sealboxd runs the ephemeral relay daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sealbox"
	"github.com/opd-ai/sealbox/web"
)

func main() {
	listen := flag.String("listen", ":8080", "listen address")
	logLevel := flag.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	cooldown := flag.Duration("rate-cooldown", 0, "flat cooldown after a rate-limit violation (0 = default)")
	basePenalty := flag.Duration("lockout-base", 0, "first brute-force lockout duration (0 = default)")
	mailboxTTL := flag.Duration("mailbox-ttl", 0, "retention for undelivered envelopes (0 = default)")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithField("log_level", *logLevel).Fatal("Unknown log level")
	}
	logrus.SetLevel(level)
	if *logJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	opts := sealbox.NewOptions()
	if *cooldown > 0 {
		opts.Cooldown = *cooldown
	}
	if *basePenalty > 0 {
		opts.BasePenalty = *basePenalty
	}
	if *mailboxTTL > 0 {
		opts.MailboxTTL = *mailboxTTL
	}

	relay, err := sealbox.New(opts)
	if err != nil {
		logrus.WithField("error", err.Error()).Fatal("Failed to start relay")
	}
	defer relay.Close()

	srv := &http.Server{
		Addr:              *listen,
		Handler:           web.NewServer(relay).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"listen":   *listen,
		}).Info("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("error", err.Error()).Fatal("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logrus.WithField("function", "main").Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithField("error", err.Error()).Warn("Shutdown did not complete cleanly")
	}
}
