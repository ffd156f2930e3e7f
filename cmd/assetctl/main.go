package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/org/assetwatch/internal/rbac"
	"github.com/org/assetwatch/internal/session"
)

// tokenKey is the slot holding the API session token, alongside the
// principal the session.Manager keeps under session.StorageKey.
const tokenKey = "token"

var (
	sessions *session.Manager
	durable  session.Store
	volatile session.Store
	policy   *rbac.AccessPolicy
)

var rootCmd = &cobra.Command{
	Use:   "assetctl",
	Short: "AssetWatch CLI",
	Long:  "A CLI for managing devices, network guard rules and users in AssetWatch.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		initSession()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(deviceCmd())
	rootCmd.AddCommand(netCmd())
	rootCmd.AddCommand(blockCmd())
	rootCmd.AddCommand(alertCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(activityCmd())
}

// initSession wires the durable file store and the per-process volatile
// store, then restores any remembered login.
func initSession() {
	durable = session.NewFileStore(filepath.Join(configDir(), "session"))
	volatile = session.NewMemoryStore()
	sessions = session.NewManager(durable, volatile)
	sessions.OnLogout(func(route string) {
		fmt.Fprintf(os.Stderr, "Logged out. Next stop: %s\n", route)
	})
	sessions.Restore()
	policy = rbac.NewAccessPolicy(sessions)
}

// currentToken returns the stored API token, remembered logins first.
func currentToken() string {
	for _, st := range []session.Store{durable, volatile} {
		if st == nil {
			continue
		}
		if data, ok := st.Get(tokenKey); ok {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

// requireCap gates a command on the active principal's capability, the
// same check the server applies. Fails closed when logged out.
func requireCap(c rbac.Capability) error {
	if !sessions.Authenticated() {
		return errors.New("not logged in (run 'assetctl login')")
	}
	if !policy.HasPermission(c) {
		return fmt.Errorf("permission denied: role %s lacks %s", sessions.Principal().Role, c)
	}
	return nil
}

func promptSecret(label string) string {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

// --- login / logout / whoami ---

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remember, _ := cmd.Flags().GetBool("remember")
			password := os.Getenv("ASSETWATCH_PASSWORD")
			if password == "" {
				password = promptSecret("Password")
			}

			client := newClient()
			result, err := client.post("/v1/auth/login", map[string]any{
				"username":    args[0],
				"password":    password,
				"remember_me": remember,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			auth, ok := result["auth"].(map[string]any)
			if !ok {
				printResult(result)
				return nil
			}

			role, _ := auth["role"].(string)
			if err := sessions.Login(args[0], role, remember); err != nil {
				printError(err.Error())
				return nil
			}
			if tok, ok := auth["session_token"].(string); ok {
				target := volatile
				if remember {
					target = durable
				}
				if err := target.Set(tokenKey, []byte(tok)); err != nil {
					printError(err.Error())
					return nil
				}
			}

			delete(auth, "session_token")
			printResult(auth)
			if remember {
				fmt.Fprintln(os.Stderr, "Session saved.")
			} else {
				fmt.Fprintln(os.Stderr, "Session is not remembered; it ends with this process.")
			}
			return nil
		},
	}
	cmd.Flags().Bool("remember", false, "Persist the session across invocations")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tok := currentToken(); tok != "" {
				// Best effort: revoke server-side, then clear locally either way.
				if _, err := newClient().post("/v1/auth/logout", nil); err != nil {
					printError(err.Error())
				}
			}
			durable.Delete(tokenKey)  //nolint:errcheck
			volatile.Delete(tokenKey) //nolint:errcheck
			sessions.Logout()
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the active principal and its capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !sessions.Authenticated() {
				printError("not logged in")
				return nil
			}
			result, err := newClient().get("/v1/auth/whoami")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

// --- device ---

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "device", Short: "Manage the device inventory"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapViewDevices); err != nil {
				return err
			}
			q := []string{}
			if v, _ := cmd.Flags().GetString("type"); v != "" {
				q = append(q, "type="+v)
			}
			if v, _ := cmd.Flags().GetString("status"); v != "" {
				q = append(q, "status="+v)
			}
			path := "/v1/devices"
			if len(q) > 0 {
				path += "?" + strings.Join(q, "&")
			}
			result, err := newClient().get(path)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				if devices, ok := d["devices"].([]any); ok {
					printRows(devices, []string{"id", "name", "type", "ip_address", "mac", "status"})
					return nil
				}
			}
			printResult(result)
			return nil
		},
	}
	listCmd.Flags().String("type", "", "Filter by device type")
	listCmd.Flags().String("status", "", "Filter by status (online, offline, unknown)")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapViewDevices); err != nil {
				return err
			}
			result, err := newClient().get("/v1/devices/" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapEditDevices); err != nil {
				return err
			}
			body := map[string]any{"name": args[0]}
			body["type"], _ = cmd.Flags().GetString("type")
			if v, _ := cmd.Flags().GetString("ip"); v != "" {
				body["ip_address"] = v
			}
			if v, _ := cmd.Flags().GetString("mac"); v != "" {
				body["mac"] = v
			}
			if cmd.Flags().Changed("lat") {
				body["latitude"], _ = cmd.Flags().GetFloat64("lat")
			}
			if cmd.Flags().Changed("lon") {
				body["longitude"], _ = cmd.Flags().GetFloat64("lon")
			}
			result, err := newClient().post("/v1/devices", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	addCmd.Flags().String("type", "", "Device type (laptop, printer, router, ...)")
	addCmd.Flags().String("ip", "", "IP address")
	addCmd.Flags().String("mac", "", "MAC address")
	addCmd.Flags().Float64("lat", 0, "Latitude for the map view")
	addCmd.Flags().Float64("lon", 0, "Longitude for the map view")
	cobra.CheckErr(addCmd.MarkFlagRequired("type"))

	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapDeleteDevices); err != nil {
				return err
			}
			if err := newClient().delete("/v1/devices/" + args[0]); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Device removed.")
			return nil
		},
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Reconcile inventory against the latest discovery sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapScanDevices); err != nil {
				return err
			}
			result, err := newClient().post("/v1/devices/scan", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(listCmd, getCmd, addCmd, rmCmd, scanCmd)
	return cmd
}

// --- net ---

func netCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "net", Short: "Network discovery and router configuration"}

	discoveryCmd := &cobra.Command{
		Use:   "discovery",
		Short: "Show the latest discovery sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapViewNetwork); err != nil {
				return err
			}
			result, err := newClient().get("/v1/network/discovery")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				if records, ok := d["records"].([]any); ok {
					printRows(records, []string{"ip_address", "mac", "hostname", "vendor"})
					return nil
				}
			}
			printResult(result)
			return nil
		},
	}

	scanCmd := &cobra.Command{
		Use:   "scan <findings.json>",
		Short: "Submit discovery sweep findings from a scanner agent",
		Long:  "Reads a JSON array of discovery records (ip_address, mac, hostname, vendor, open_ports) and records them as a new sweep.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapManageNetwork); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			var records []map[string]any
			if err := json.Unmarshal(data, &records); err != nil {
				printError("parsing findings: " + err.Error())
				return nil
			}
			result, err := newClient().post("/v1/network/discovery", map[string]any{
				"records": records,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	routerCmd := &cobra.Command{Use: "router", Short: "Router configuration"}

	routerGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the router configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapConfigureRouter); err != nil {
				return err
			}
			result, err := newClient().get("/v1/network/router")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	routerSetCmd := &cobra.Command{
		Use:   "set",
		Short: "Update the router configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapConfigureRouter); err != nil {
				return err
			}
			body := map[string]any{}
			body["address"], _ = cmd.Flags().GetString("address")
			if v, _ := cmd.Flags().GetString("admin-user"); v != "" {
				body["admin_user"] = v
			}
			if v, _ := cmd.Flags().GetStringSlice("dns"); len(v) > 0 {
				body["dns_servers"] = v
			}
			if v, _ := cmd.Flags().GetString("dhcp-range"); v != "" {
				body["dhcp_range"] = v
			}
			result, err := newClient().put("/v1/network/router", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	routerSetCmd.Flags().String("address", "", "Router address")
	routerSetCmd.Flags().String("admin-user", "", "Router admin username")
	routerSetCmd.Flags().StringSlice("dns", nil, "DNS servers")
	routerSetCmd.Flags().String("dhcp-range", "", "DHCP range (e.g. 192.168.1.100-200)")
	cobra.CheckErr(routerSetCmd.MarkFlagRequired("address"))

	routerCmd.AddCommand(routerGetCmd, routerSetCmd)
	cmd.AddCommand(discoveryCmd, scanCmd, routerCmd)
	return cmd
}

// --- block ---

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "block", Short: "Manage blocked websites"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List blocked sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapViewNetwork); err != nil {
				return err
			}
			result, err := newClient().get("/v1/blocking/sites")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				if sites, ok := d["sites"].([]any); ok {
					printRows(sites, []string{"hostname", "reason", "added_by", "created_at"})
					return nil
				}
			}
			printResult(result)
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <site>",
		Short: "Block a website",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapBlockWebsites); err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			result, err := newClient().post("/v1/blocking/sites", map[string]any{
				"site":   args[0],
				"reason": reason,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	addCmd.Flags().String("reason", "", "Why the site is blocked")

	rmCmd := &cobra.Command{
		Use:   "rm <hostname>",
		Short: "Unblock a website",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapBlockWebsites); err != nil {
				return err
			}
			if err := newClient().delete("/v1/blocking/sites/" + args[0]); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Site unblocked.")
			return nil
		},
	}

	cmd.AddCommand(listCmd, addCmd, rmCmd)
	return cmd
}

// --- alert ---

func alertCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "alert", Short: "View and acknowledge alerts"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapViewAlerts); err != nil {
				return err
			}
			path := "/v1/alerts"
			if all, _ := cmd.Flags().GetBool("all"); !all {
				path += "?open=true"
			}
			result, err := newClient().get(path)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				if alerts, ok := d["alerts"].([]any); ok {
					printRows(alerts, []string{"id", "severity", "message", "created_at", "acked_by"})
					return nil
				}
			}
			printResult(result)
			return nil
		},
	}
	listCmd.Flags().Bool("all", false, "Include acknowledged alerts")

	ackCmd := &cobra.Command{
		Use:   "ack <id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapViewAlerts); err != nil {
				return err
			}
			if _, err := newClient().post("/v1/alerts/"+args[0]+"/ack", nil); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Alert acknowledged.")
			return nil
		},
	}

	cmd.AddCommand(listCmd, ackCmd)
	return cmd
}

// --- user ---

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage user accounts"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapManageUsers); err != nil {
				return err
			}
			result, err := newClient().get("/v1/users")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				if users, ok := d["users"].([]any); ok {
					printRows(users, []string{"username", "role", "created_at", "last_login_at"})
					return nil
				}
			}
			printResult(result)
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapManageUsers); err != nil {
				return err
			}
			role, _ := cmd.Flags().GetString("role")
			if !rbac.ParseRole(role).Valid() {
				return fmt.Errorf("unknown role: %s", role)
			}
			password := promptSecret("Password for " + args[0])
			result, err := newClient().post("/v1/users", map[string]any{
				"username": args[0],
				"password": password,
				"role":     role,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	addCmd.Flags().String("role", "viewer", "Role: admin, manager or viewer")

	rmCmd := &cobra.Command{
		Use:   "rm <username>",
		Short: "Delete a user and revoke their sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapManageUsers); err != nil {
				return err
			}
			if err := newClient().delete("/v1/users/" + args[0]); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! User deleted.")
			return nil
		},
	}

	cmd.AddCommand(listCmd, addCmd, rmCmd)
	return cmd
}

// --- settings ---

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Read and write server settings"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapManageSettings); err != nil {
				return err
			}
			result, err := newClient().get("/v1/settings")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapManageSettings); err != nil {
				return err
			}
			if _, err := newClient().put("/v1/settings", map[string]string{args[0]: args[1]}); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Setting stored.")
			return nil
		},
	}

	cmd.AddCommand(listCmd, setCmd)
	return cmd
}

// --- activity ---

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCap(rbac.CapViewReports); err != nil {
				return err
			}
			q := []string{}
			if v, _ := cmd.Flags().GetString("user"); v != "" {
				q = append(q, "username="+v)
			}
			if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
				q = append(q, fmt.Sprintf("limit=%d", v))
			}
			path := "/v1/sys/activity"
			if len(q) > 0 {
				path += "?" + strings.Join(q, "&")
			}
			result, err := newClient().get(path)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				if entries, ok := d["entries"].([]any); ok {
					printRows(entries, []string{"timestamp", "username", "operation", "path", "response_code"})
					return nil
				}
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("user", "", "Filter by username")
	cmd.Flags().Int("limit", 50, "Maximum entries")
	return cmd
}
