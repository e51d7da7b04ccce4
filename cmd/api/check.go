package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
	"github.com/wiki-mailauth/internal/pkg/emailaddr"
)

func runSMTPCheck(ctx context.Context, _ *cli.Command) error {
	a, err := setup()
	if err != nil {
		return err
	}
	if err := a.auth.CheckDelivery(ctx); err != nil {
		return err
	}
	slog.Info("SMTP connection ok", "host", a.cfg.SMTP.Host, "port", a.cfg.SMTP.Port, "user", emailaddr.Mask(a.cfg.SMTP.Username))
	fmt.Println("SMTP connection ok")
	return nil
}
