package commands

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devoll/rhga-schedule-bot/internal/auth"
	"github.com/devoll/rhga-schedule-bot/internal/handlers"
	"github.com/devoll/rhga-schedule-bot/internal/syncer"
	"github.com/devoll/rhga-schedule-bot/internal/telegram"
	"github.com/devoll/rhga-schedule-bot/web"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, web chat, Telegram bot and the periodic sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			creds, err := auth.Load(cfg.AuthFile)
			if err != nil {
				return err
			}

			scheduleHandler := handlers.NewScheduleHandler(a.timetable, a.store, cfg.CacheTTL)
			a.sync.OnSynced = append(a.sync.OnSynced, func(syncer.Report) { scheduleHandler.Invalidate() })

			if !noScheduler {
				sched, err := syncer.NewScheduler(a.sync, cfg.Sync.Cron, cfg.Sync.AllowOverlap)
				if err != nil {
					return err
				}
				sched.Start()
				defer func() {
					<-sched.Stop().Done()
				}()
			}

			if cfg.TelegramToken != "" {
				bot, err := telegram.New(cfg.TelegramToken, scheduleHandler)
				if err != nil {
					return err
				}
				go bot.Run(ctx)
			} else {
				log.Println("TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
			}

			r, err := newRouter(a, scheduleHandler, creds)
			if err != nil {
				return err
			}
			return runHTTP(ctx, cfg.HTTPAddr, r)
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the periodic sync")
	return cmd
}

func newRouter(a *app, scheduleHandler *handlers.ScheduleHandler, creds auth.Credentials) (*gin.Engine, error) {
	chatHandler := handlers.NewChatHandler(scheduleHandler)
	adminHandler := handlers.NewAdminHandler(a.sync, a.fetcher)

	r := gin.Default()
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	// Rutas públicas
	r.GET("/", chatHandler.ShowChat)
	r.GET("/ws", chatHandler.HandleWebSocket)

	r.GET("/schedule/next", scheduleHandler.GetNextDay)
	r.GET("/schedule/groups/:group", scheduleHandler.GetGroup)

	r.GET("/google-sheets/sheet", adminHandler.GetSheet)
	r.GET("/google-sheets/all-sheets", adminHandler.GetAllSheets)

	// Rutas protegidas
	syncGroup := r.Group("/sync")
	syncGroup.Use(handlers.AuthMiddleware(creds))
	{
		syncGroup.POST("/sheet-to-db", adminHandler.SyncSheetToDB)
	}
	return r, nil
}

func runHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
