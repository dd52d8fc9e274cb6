package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"botframe/pkg/activity"
	"botframe/pkg/adapter"
	"botframe/pkg/auth"
	"botframe/pkg/config"
	"botframe/pkg/dialog"
	"botframe/pkg/logger"
	"botframe/pkg/metrics"
	"botframe/pkg/server"
	"botframe/pkg/state"
	"botframe/pkg/telemetry"
	"botframe/pkg/turn"
)

const greetingDialogID = "greeting"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot endpoint",
	Long:  "Loads configuration and serves the bot over HTTP with health and metrics endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := buildServer(cfg, appLogger)
		if err != nil {
			log.Error("Failed to initialize bot runtime", "error", err)
			return
		}

		authEnabled := cfg.App.ID != ""
		log.Info("Bot runtime started", "app_id", cfg.App.ID, "auth_enabled", authEnabled)

		if err := srv.Run(runCtx); err != nil {
			log.Error("Bot endpoint stopped with error", "error", err)
			return
		}

		log.Info("Bot runtime stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildServer wires the runtime: credentials, token validation, adapter,
// conversation state, the sample greeting dialog, and the HTTP surface.
func buildServer(cfg *config.Config, appLogger *slog.Logger) (*server.Server, error) {
	creds := auth.NewPasswordCredentialFactory(cfg.App.ID, cfg.App.Password, cfg.App.Tenant)

	bfAuth, err := auth.NewBotFrameworkAuthentication(auth.Config{
		Credentials:     creds,
		ClaimsValidator: auth.AllowedCallersClaimsValidator(cfg.Auth.AllowedCallers),
		ChannelService:  cfg.Auth.ChannelService,
		Logger:          appLogger,
	})
	if err != nil {
		return nil, err
	}

	transcript := telemetry.NewMemoryTranscript()
	cloudAdapter, err := adapter.NewCloudAdapter(bfAuth,
		adapter.WithLogger(appLogger),
		adapter.WithTranscript(transcript),
	)
	if err != nil {
		return nil, err
	}

	conversations, err := state.NewConversationState(state.NewMemoryStorage())
	if err != nil {
		return nil, err
	}

	dialogState, err := state.NewProperty[dialog.State](conversations, "dialogState")
	if err != nil {
		return nil, err
	}

	dialogs := dialog.NewSet(telemetry.NewLogClient(appLogger))
	if err := dialogs.Add(greetingDialog(dialogs.Telemetry())); err != nil {
		return nil, err
	}

	handler := newTurnHandler(dialogs, conversations, dialogState)

	return server.New(cfg.Server, cloudAdapter, handler, metrics.New(), appLogger)
}

// greetingDialog is the sample root dialog: ask for a name, greet, done.
func greetingDialog(client telemetry.Client) *dialog.Waterfall {
	return dialog.NewWaterfall(greetingDialogID, client).
		AddStep(func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
			if _, err := step.Context().SendText(ctx, "What is your name?"); err != nil {
				return dialog.TurnResult{}, err
			}
			return dialog.EndOfTurn, nil
		}).
		AddStep(func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
			name := ""
			if act, ok := step.Result().(*activity.Activity); ok {
				name = act.Text
			}
			if _, err := step.Context().SendText(ctx, fmt.Sprintf("Nice to meet you, %s!", name)); err != nil {
				return dialog.TurnResult{}, err
			}
			return step.End(ctx, name)
		})
}

// newTurnHandler routes inbound activities: messages drive the dialog
// stack, conversation updates greet new members.
func newTurnHandler(dialogs *dialog.Set, conversations *state.ConversationState, dialogState *state.Property[dialog.State]) turn.Handler {
	return func(ctx context.Context, tctx *turn.Context) error {
		switch tctx.Activity().Type {
		case activity.TypeMessage:
			if _, err := dialog.RunWithState(ctx, dialogs, tctx, dialogState, greetingDialogID); err != nil {
				return err
			}
			return conversations.Save(ctx, tctx, false)

		case activity.TypeConversationUpdate:
			for _, member := range tctx.Activity().MembersAdded {
				if member.ID == tctx.Activity().Recipient.ID {
					continue
				}
				if _, err := tctx.SendText(ctx, "Hello and welcome!"); err != nil {
					return err
				}
			}
			return nil

		default:
			return nil
		}
	}
}
