package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/planchoque/portal/internal/auth"
	"github.com/planchoque/portal/internal/db"
	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/repo"
	"github.com/planchoque/portal/internal/service"
	"github.com/planchoque/portal/internal/util"
)

var pool *pgxpool.Pool

var rootCmd = &cobra.Command{
	Use:           "usuarios",
	Short:         "Administra usuarios y roles del portal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return errors.New("defina DB_DSN o DATABASE_URL")
		}

		p, err := db.NewPool(cmd.Context(), dsn)
		if err != nil {
			return fmt.Errorf("no fue posible conectar a la base de datos: %w", err)
		}
		pool = p
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pool != nil {
			pool.Close()
		}
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Crea un usuario activo",
	Long: `Crea un usuario con rol textual (--rol) o ID heredado (--tipo 1 a 6).

Ejemplos:
  usuarios create --email ana@terpel.com --nombre "Ana" --rol asesor --clave <clave>
  usuarios create --email ana@terpel.com --nombre "Ana" --tipo 1 --clave <clave>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		nombre, _ := cmd.Flags().GetString("nombre")
		rol, _ := cmd.Flags().GetString("rol")
		tipo, _ := cmd.Flags().GetInt("tipo")
		clave, _ := cmd.Flags().GetString("clave")

		if err := util.ValidateEmail(email); err != nil {
			return err
		}
		if err := util.RequireString(nombre, "nombre"); err != nil {
			return err
		}
		if err := util.ValidatePassword(clave); err != nil {
			return err
		}

		params := repo.CrearUsuarioParams{Nombre: nombre, Email: email}
		switch {
		case tipo != 0:
			if _, ok := rbac.LegacyID(legacyRole(tipo)); !ok {
				return fmt.Errorf("tipo %d fuera de la tabla heredada", tipo)
			}
			params.Tipo = &tipo
		case rol != "":
			role, err := parseRole(rol)
			if err != nil {
				return err
			}
			token := role.String()
			params.Rol = &token
		default:
			return errors.New("indique --rol o --tipo")
		}

		hash, err := auth.Hash(clave)
		if err != nil {
			return fmt.Errorf("hash: %w", err)
		}
		params.ClaveHash = hash

		created, err := repo.New(pool).CreateUsuario(cmd.Context(), params)
		if err != nil {
			return err
		}
		return printJSON(summary(created))
	},
}

var setRolCmd = &cobra.Command{
	Use:   "set-rol <email> <rol>",
	Short: "Reemplaza el rol de un usuario",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := parseRole(args[1])
		if err != nil {
			return err
		}
		return db.WithTx(cmd.Context(), pool, func(ctx context.Context, tx pgx.Tx) error {
			q := repo.New(tx)
			u, err := q.LockUsuarioByEmail(ctx, args[0])
			if err != nil {
				return err
			}
			if err := q.SetRol(ctx, u.ID, role.String()); err != nil {
				return err
			}
			log.Info().Str("usuario", u.ID.String()).Str("rol", role.String()).Msg("rol actualizado")
			return nil
		})
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <email>",
	Short: "Deshabilita el acceso de un usuario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActivo(cmd.Context(), args[0], false)
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <email>",
	Short: "Rehabilita el acceso de un usuario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActivo(cmd.Context(), args[0], true)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lista usuarios con su rol resuelto",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := repo.New(pool).ListUsuarios(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("no hay usuarios registrados")
			return nil
		}

		out := make([]map[string]any, 0, len(users))
		for _, u := range users {
			out = append(out, summary(u))
		}
		return printJSON(out)
	},
}

var accesosCmd = &cobra.Command{
	Use:   "accesos",
	Short: "Muestra los últimos accesos denegados",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		items, err := repo.New(pool).RecentAccesosDenegados(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return printJSON(items)
	},
}

func init() {
	rootCmd.AddCommand(createCmd, setRolCmd, disableCmd, enableCmd, listCmd, accesosCmd)

	createCmd.Flags().String("email", "", "email de acceso")
	createCmd.Flags().String("nombre", "", "nombre visible")
	createCmd.Flags().String("rol", "", "token de rol ("+strings.Join(rbac.Strings(rbac.ActiveRoles()), ", ")+")")
	createCmd.Flags().Int("tipo", 0, "ID heredado de rol (1 a 6)")
	createCmd.Flags().String("clave", "", "clave inicial")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("clave")

	accesosCmd.Flags().Int("limit", 50, "cantidad máxima de registros")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("comando falló")
	}
}

func setActivo(ctx context.Context, email string, activo bool) error {
	return db.WithTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		q := repo.New(tx)
		u, err := q.LockUsuarioByEmail(ctx, email)
		if err != nil {
			return err
		}
		return q.SetActivo(ctx, u.ID, activo)
	})
}

func parseRole(raw string) (rbac.Role, error) {
	roles := rbac.ParseAllowList(raw)
	if len(roles) != 1 || !roles[0].Known() {
		return rbac.None, fmt.Errorf("rol %q desconocido", raw)
	}
	return roles[0], nil
}

func legacyRole(id int) rbac.Role {
	return rbac.ResolveRole(&rbac.Usuario{Tipo: rbac.LegacyValue(id)})
}

func summary(u repo.Usuario) map[string]any {
	su := service.SessionUser(u)
	return map[string]any{
		"id":     u.ID,
		"nombre": u.Nombre,
		"email":  u.Email,
		"rol":    rbac.ResolveRole(&su),
		"activo": u.Activo,
	}
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
