package webhook

import (
	"go.uber.org/fx"

	"github.com/fieldglass/billingsync/internal/app/service/deadletter"
	"github.com/fieldglass/billingsync/internal/app/service/ledger"
)

var Module = fx.Options(
	fx.Provide(
		NewStore,
		NewHandler,
		func(s *deadletter.Service) DeadLetters { return s },
		func(s *ledger.Service) Janitor { return s },
	),
)
