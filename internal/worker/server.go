package worker

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"corsair/internal/domain"
	"corsair/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *Engine
	BasePath string
}

// NewHandler returns an HTTP handler exposing the worker API plus the
// /ws push channel.
func NewHandler(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Engine.JWTSecret))
	hcfg := huma.DefaultConfig("Corsair Worker API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg.Engine)
	registerMissions(group, cfg.Engine)
	registerArena(group, cfg.Engine)
	registerInventory(group, cfg.Engine)
	registerLeaderboards(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	router.Get("/ws", pushHandler(cfg.Engine))

	return router, nil
}

func handleError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already on a mission"):
		return huma.Error409Conflict(msg)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return huma.Error400BadRequest(msg)
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}

func requireWallet(ctx context.Context) (string, error) {
	wallet, ok := walletFromContext(ctx)
	if !ok {
		return "", huma.Error401Unauthorized("authentication required")
	}
	return wallet, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, e *Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "auth-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Issue a bearer token for a wallet",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Wallet string `json:"wallet"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Token string `json:"token"`
		} `json:"body"`
	}, error) {
		token, err := e.Login(ctx, strings.TrimSpace(input.Body.Wallet))
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Token string `json:"token"`
			} `json:"body"`
		}{}
		out.Body.Token = token
		return out, nil
	})
}

type jobResponse struct {
	Body domain.Job `json:"body"`
}

func registerMissions(api huma.API, e *Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "initiate-mission",
		Method:      http.MethodPost,
		Path:        "/missions/initiate",
		Summary:     "Initiate a mission for a group of captains",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body struct {
			MissionPath string   `json:"missionPath"`
			NFTs        []string `json:"nfts"`
		} `json:"body"`
	}) (*jobResponse, error) {
		wallet, err := requireWallet(ctx)
		if err != nil {
			return nil, err
		}
		job, err := e.Initiate(ctx, wallet, input.Body.MissionPath, input.Body.NFTs)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobResponse{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-missions",
		Method:      http.MethodGet,
		Path:        "/missions/active-missions/",
		Summary:     "List missions currently in progress",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []domain.ActiveMission `json:"items"`
		} `json:"body"`
	}, error) {
		wallet, err := requireWallet(ctx)
		if err != nil {
			return nil, err
		}
		items, err := e.Repo.ActiveMissions(ctx, wallet)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.ActiveMission `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mission-stats",
		Method:      http.MethodGet,
		Path:        "/missions/stats",
		Summary:     "Live mission stats for one kind",
	}, func(ctx context.Context, input *struct {
		Kind string `query:"kind"`
	}) (*struct {
		Body struct {
			Items []domain.MissionStats `json:"items"`
		} `json:"body"`
	}, error) {
		if _, err := requireWallet(ctx); err != nil {
			return nil, err
		}
		if input.Kind == "" {
			return nil, huma.Error400BadRequest("kind is required")
		}
		out := &struct {
			Body struct {
				Items []domain.MissionStats `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = e.Stats(domain.MissionKind(input.Kind))
		return out, nil
	})
}

func registerArena(api huma.API, e *Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "initiate-arena",
		Method:      http.MethodPost,
		Path:        "/arena/initiate",
		Summary:     "Enter the arena with a group of captains",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body struct {
			NFTs []string `json:"nfts"`
		} `json:"body"`
	}) (*jobResponse, error) {
		wallet, err := requireWallet(ctx)
		if err != nil {
			return nil, err
		}
		job, err := e.InitiateArena(ctx, wallet, input.Body.NFTs)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobResponse{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "arena-leaderboard",
		Method:      http.MethodGet,
		Path:        "/arena/leaderboard",
		Summary:     "Arena leaderboard",
	}, func(ctx context.Context, _ *struct{}) (*leaderboardResponse, error) {
		if _, err := requireWallet(ctx); err != nil {
			return nil, err
		}
		items, err := e.Repo.Leaderboard(ctx, true, 25)
		if err != nil {
			return nil, handleError(err)
		}
		out := &leaderboardResponse{}
		out.Body.Items = items
		return out, nil
	})
}

type leaderboardResponse struct {
	Body struct {
		Items []domain.LeaderboardEntry `json:"items"`
	} `json:"body"`
}

func registerInventory(api huma.API, e *Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-nfts",
		Method:      http.MethodGet,
		Path:        "/nfts",
		Summary:     "List the caller's fleet",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []domain.NFT `json:"items"`
		} `json:"body"`
	}, error) {
		wallet, err := requireWallet(ctx)
		if err != nil {
			return nil, err
		}
		items, err := e.Repo.ListNFTs(ctx, wallet)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.NFT `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Balance snapshot for the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Profile `json:"body"`
	}, error) {
		wallet, err := requireWallet(ctx)
		if err != nil {
			return nil, err
		}
		p, err := e.Repo.GetUser(ctx, wallet)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Profile `json:"body"`
		}{Body: p}, nil
	})
}

func registerLeaderboards(api huma.API, e *Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "leaderboard-top",
		Method:      http.MethodGet,
		Path:        "/leaderboard/top",
		Summary:     "Main leaderboard",
	}, func(ctx context.Context, _ *struct{}) (*leaderboardResponse, error) {
		if _, err := requireWallet(ctx); err != nil {
			return nil, err
		}
		items, err := e.Repo.Leaderboard(ctx, false, 25)
		if err != nil {
			return nil, handleError(err)
		}
		out := &leaderboardResponse{}
		out.Body.Items = items
		return out, nil
	})
}

func registerEvents(api huma.API, e *Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent activity feed",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body struct {
			Items []domain.Event `json:"items"`
		} `json:"body"`
	}, error) {
		if _, err := requireWallet(ctx); err != nil {
			return nil, err
		}
		items, err := e.Repo.LatestEvents(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Event `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// pushHandler upgrades the connection and streams job notifications for
// the authenticated wallet until the peer goes away. /ws sits outside the
// API base path, so it authenticates on its own.
func pushHandler(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(strings.TrimSpace(r.Header.Get("Authorization")))
		if !ok {
			token = r.URL.Query().Get("token")
		}
		wallet, err := authenticate(token, e.JWTSecret)
		if err != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			e.logger().Printf("push channel upgrade failed: %v", err)
			return
		}
		e.Hub.Register(conn, wallet)
		defer func() {
			e.Hub.Unregister(conn)
			conn.Close()
		}()
		// Clients only listen; drain until the connection drops.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
