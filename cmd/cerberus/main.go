// Command cerberus is a stand-in identity service for local
// development. It answers the introspection contract Ragnarok expects:
// OPTIONS /introspect with a bearer token returns 204 plus X-User-*
// headers for known tokens and 401 for everything else.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type identity struct {
	UserID      string
	UserName    string
	UserRole    string
	Affiliation string
}

func tokenTable() map[string]identity {
	secret := os.Getenv("RAGNAROK_SECRET_KEY")
	if secret == "" {
		secret = "supersecrettoken"
	}
	return map[string]identity{
		secret: {UserID: "admin-1", UserName: "overseer", UserRole: "admin", Affiliation: ""},
		"hero-token": {
			UserID: "user-1", UserName: "siegfried", UserRole: "user", Affiliation: "Asgard",
		},
		"villain-token": {
			UserID: "user-2", UserName: "loki", UserRole: "user", Affiliation: "Jotunheim",
		},
		"lone-token": {
			// No affiliation header; callers fall back to the username.
			UserID: "user-3", UserName: "kvasir", UserRole: "user", Affiliation: "",
		},
	}
}

func introspect(tokens map[string]identity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token := bearerToken(r)
		id, ok := tokens[token]
		if token == "" || !ok {
			log.Info().Str("remote", r.RemoteAddr).Msg("rejected token")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("X-User-Id", id.UserID)
		w.Header().Set("X-User-Name", id.UserName)
		w.Header().Set("X-User-Role", id.UserRole)
		if id.Affiliation != "" {
			w.Header().Set("X-User-Affiliation", id.Affiliation)
		}
		log.Info().Str("user", id.UserName).Str("role", id.UserRole).Msg("introspected token")
		w.WriteHeader(http.StatusNoContent)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var port int
	rootCmd := &cobra.Command{
		Use:   "cerberus",
		Short: "Fake identity service for local Ragnarok development",
		RunE: func(cmd *cobra.Command, args []string) error {
			mux := http.NewServeMux()
			mux.HandleFunc("/introspect", introspect(tokenTable()))
			addr := fmt.Sprintf("127.0.0.1:%d", port)
			log.Info().Str("addr", addr).Msg("starting fake identity service")
			server := &http.Server{
				Addr:         addr,
				Handler:      mux,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 5 * time.Second,
			}
			return server.ListenAndServe()
		},
	}
	rootCmd.Flags().IntVarP(&port, "port", "p", 5001, "port to listen on")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
