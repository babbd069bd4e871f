package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/grantex/internal/config"
	httpserver "github.com/dropDatabas3/grantex/internal/http"
	jwtx "github.com/dropDatabas3/grantex/internal/jwt"
	"github.com/dropDatabas3/grantex/internal/oauth"
	"github.com/dropDatabas3/grantex/internal/observability/logger"
	"github.com/dropDatabas3/grantex/internal/security/securecode"
	"github.com/dropDatabas3/grantex/internal/store"
)

func main() {
	// .env es opcional; si no existe seguimos con el entorno del proceso
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:           "grantex",
		Short:         "OAuth2 token engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "ruta del YAML de configuración")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(clientsCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el token endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger.Init(logger.Config{Env: cfg.App.Env, ServiceName: "grantex"})
			defer logger.Sync()
			log := logger.L()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logger.ToContext(ctx, log)

			st, err := store.Open(ctx, store.Config{
				Driver: cfg.Storage.Driver,
				DSN:    cfg.Storage.DSN,
				Redis: store.RedisConfig{
					Addr:     cfg.Storage.Redis.Addr,
					Password: cfg.Storage.Redis.Password,
					DB:       cfg.Storage.Redis.DB,
					Prefix:   cfg.Storage.Redis.Prefix,
				},
			})
			if err != nil {
				return err
			}
			defer st.Close()

			var decoder oauth.TokenDecoder
			if cfg.JWT.Secret != "" {
				decoder = jwtx.NewDecoder([]byte(cfg.JWT.Secret), cfg.JWT.Issuer)
			}

			scheme := securecode.Scheme{}
			engine := oauth.NewEngine(oauth.EngineDeps{
				Clients:        st.Clients,
				Authorizations: oauth.NewAuthorizations(st.Authorizations, scheme, decoder),
				IssueRefresh:   cfg.Tokens.IssueRefresh,
				RotateRefresh:  cfg.Tokens.RotateRefresh,
			})

			router := httpserver.NewRouter(engine, nil)
			srv := httpserver.NewServer(cfg.Server.Addr, router)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("server listening", logger.String("addr", cfg.Server.Addr))
				return srv.Start()
			})
			g.Go(func() error {
				<-ctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func clientsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Administración de clients OAuth2",
	}

	var (
		name        string
		redirectURI string
		clientType  string
		ownerID     string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Registra un client y muestra el secret una única vez",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), *cfgPath, func(ctx context.Context, st *store.Store) error {
				svc := oauth.NewClients(st.Clients, securecode.Scheme{})
				client, secret, err := svc.Create(ctx, oauth.CreateClientInput{
					Name:        name,
					RedirectURI: redirectURI,
					Type:        clientType,
					OwnerID:     ownerID,
				})
				if err != nil {
					return err
				}
				fmt.Printf("id:            %s\n", client.ID)
				fmt.Printf("client_id:     %s\n", client.ClientID)
				fmt.Printf("client_secret: %s\n", secret)
				fmt.Println("guardá el secret ahora: no se puede recuperar después")
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "nombre único del client")
	create.Flags().StringVar(&redirectURI, "redirect-uri", "", "redirect URI registrada (URI absoluta)")
	create.Flags().StringVar(&clientType, "type", "confidential", "confidential | native")
	create.Flags().StringVar(&ownerID, "owner", "", "owner del client")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("redirect-uri")

	var id string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Borra un client y todos sus grants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), *cfgPath, func(ctx context.Context, st *store.Store) error {
				svc := oauth.NewClients(st.Clients, securecode.Scheme{})
				if err := svc.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Println("deleted", id)
				return nil
			})
		},
	}
	del.Flags().StringVar(&id, "id", "", "id del client")
	_ = del.MarkFlagRequired("id")

	cmd.AddCommand(create, del)
	return cmd
}

// withStore abre el store de la config, corre fn y cierra.
func withStore(ctx context.Context, cfgPath string, fn func(context.Context, *store.Store) error) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(logger.Config{Env: cfg.App.Env, ServiceName: "grantex"})
	defer logger.Sync()
	ctx = logger.ToContext(ctx, logger.L())

	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Redis: store.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		},
	})
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}
