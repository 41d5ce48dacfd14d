package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fieldglass/billingsync/internal/app/api/server"
	"github.com/fieldglass/billingsync/internal/app/service/deadletter"
	"github.com/fieldglass/billingsync/internal/app/service/ledger"
	"github.com/fieldglass/billingsync/internal/app/service/notify"
	"github.com/fieldglass/billingsync/internal/app/service/reconcile"
	"github.com/fieldglass/billingsync/internal/app/service/resolver"
	"github.com/fieldglass/billingsync/internal/app/service/state"
	"github.com/fieldglass/billingsync/internal/app/service/webhook"
	"github.com/fieldglass/billingsync/internal/platform/db"
	stripegw "github.com/fieldglass/billingsync/internal/platform/stripe"
	"github.com/fieldglass/billingsync/pkg/config"
	"github.com/fieldglass/billingsync/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	stripegw.Module,
	server.Module,
	ledger.Module,
	resolver.Module,
	state.Module,
	deadletter.Module,
	notify.Module,
	webhook.Module,
	reconcile.Module,
)
