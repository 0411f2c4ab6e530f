package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/basenote/onchain"
	"github.com/basenote/onchain/inflight"
	redisstore "github.com/basenote/onchain/persistence/redis"
)

var (
	cfg          *onchain.Config
	walletRPCURL string
	redisURL     string
	redisPrefix  string

	noteTitle   string
	noteContent string
	noteFont    string
	noteID      string
	noteOnChain bool
	inputFile   string
)

var rootCmd = &cobra.Command{
	Use:   "basenote",
	Short: "Save and mint BaseNote data on Base through a connected wallet",
	Long: `basenote drives the BaseNote on-chain actions against a wallet exposing
a JSON-RPC endpoint (e.g. Frame on http://127.0.0.1:1248).

Configuration is read from BASENOTE_* environment variables:
  BASENOTE_NFT_ADDRESS        note NFT contract
  BASENOTE_STORAGE_ADDRESS    note storage contract
  BASENOTE_WALLET_RPC_URL     wallet endpoint
  BASENOTE_REDIS_URL          shared stores (optional)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = onchain.LoadConfig()
		if err != nil {
			return err
		}
		if walletRPCURL != "" {
			cfg.WalletRPCURL = walletRPCURL
		}
		if redisURL != "" {
			cfg.RedisURL = redisURL
		}
		return nil
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Print the current ETH/USD rate used to convert fees",
	RunE: func(cmd *cobra.Command, args []string) error {
		oracle := onchain.NewPriceOracle(onchain.WithPriceAPIURL(cfg.PriceAPIURL))
		rate := oracle.GetExchangeRate(cmd.Context())
		converter := onchain.NewValueConverter(oracle)

		mintFee, err := converter.FiatToNativeUnits(cmd.Context(), cfg.MintFeeUSD)
		if err != nil {
			return err
		}
		saveFee, err := converter.FiatToNativeUnits(cmd.Context(), cfg.SaveFeeUSD)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "1 ETH = %s USD\n", rate.String())
		fmt.Fprintf(cmd.OutOrStdout(), "mint fee %s USD = %s wei\n", cfg.MintFeeUSD, mintFee)
		fmt.Fprintf(cmd.OutOrStdout(), "save fee %s USD = %s wei\n", cfg.SaveFeeUSD, saveFee)
		return nil
	},
}

var saveNoteCmd = &cobra.Command{
	Use:   "save-note",
	Short: "Save a note locally, and on-chain with --on-chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !noteOnChain {
			return saveNoteLocally(cmd, newNote())
		}
		return withOrchestrator(cmd, func(ctx context.Context, o *onchain.Orchestrator) error {
			result, err := o.SaveNote(ctx, newNote(), true)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		})
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a note as an NFT",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(ctx context.Context, o *onchain.Orchestrator) error {
			result, err := o.MintNote(ctx, newNote())
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		})
	},
}

var saveTodosCmd = &cobra.Command{
	Use:   "save-todos --file todos.json",
	Short: "Save a todo list on-chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		var todos []onchain.Todo
		if err := readInput(&todos); err != nil {
			return err
		}
		return withOrchestrator(cmd, func(ctx context.Context, o *onchain.Orchestrator) error {
			result, err := o.SaveTodos(ctx, todos)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		})
	},
}

var saveInvestmentsCmd = &cobra.Command{
	Use:   "save-investments --file investments.json",
	Short: "Save tracked investments on-chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		var investments []onchain.Investment
		if err := readInput(&investments); err != nil {
			return err
		}
		return withOrchestrator(cmd, func(ctx context.Context, o *onchain.Orchestrator) error {
			result, err := o.SaveInvestments(ctx, investments)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		})
	},
}

var readNotesCmd = &cobra.Command{
	Use:   "read-notes",
	Short: "Read the notes stored on-chain for the connected account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(ctx context.Context, o *onchain.Orchestrator) error {
			notes, err := o.ReadNotes(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), notes)
			return nil
		})
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Settle actions interrupted by a crash and list paid but unfulfilled ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(ctx context.Context, o *onchain.Orchestrator) error {
			result, err := o.Recover(ctx, onchain.RecoveryOptions{
				OnUnfulfilled: func(record *onchain.ActionRecord) {
					logger.WithFields(logger.Fields{
						"workflow_id": record.ID,
						"action":      record.Kind,
						"item_id":     record.ItemID,
						"fee_tx_hash": record.FeeTxHash,
					}).Warn("Fee paid but the contract call never confirmed")
				},
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checked %d, completed %d, failed %d, still pending %d\n",
				result.Checked, result.Completed, result.Failed, result.StillPending)
			for _, r := range result.Unfulfilled {
				fmt.Fprintf(out, "unfulfilled: %s %s item %s\n", r.ID, r.Kind, r.ItemID)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(out, "error: %v\n", e)
			}
			return nil
		})
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the persisted action records",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.close()

		records, err := st.actions.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range records {
			marker := ""
			if r.Unfulfilled() {
				marker = " (fee paid, unfulfilled)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-16s %-20s %s%s\n",
				r.CreatedAt.Format(time.RFC3339), r.Kind, r.State, r.ItemID, marker)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&walletRPCURL, "wallet-rpc", "", "wallet JSON-RPC endpoint (overrides BASENOTE_WALLET_RPC_URL)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "redis URL for shared stores (overrides BASENOTE_REDIS_URL)")
	rootCmd.PersistentFlags().StringVar(&redisPrefix, "redis-prefix", "", "key prefix for the redis stores")

	for _, c := range []*cobra.Command{saveNoteCmd, mintCmd} {
		c.Flags().StringVar(&noteID, "id", "", "note id (generated when empty)")
		c.Flags().StringVar(&noteTitle, "title", "", "note title")
		c.Flags().StringVar(&noteContent, "content", "", "note content")
		c.Flags().StringVar(&noteFont, "font", "", "note font")
		_ = c.MarkFlagRequired("content")
	}
	saveNoteCmd.Flags().BoolVar(&noteOnChain, "on-chain", false, "also store the note on-chain")

	for _, c := range []*cobra.Command{saveTodosCmd, saveInvestmentsCmd} {
		c.Flags().StringVar(&inputFile, "file", "", "JSON file holding the list")
		_ = c.MarkFlagRequired("file")
	}

	rootCmd.AddCommand(rateCmd, saveNoteCmd, mintCmd, saveTodosCmd, saveInvestmentsCmd,
		readNotesCmd, recoverCmd, actionsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, onchain.UserMessage(err))
		logger.WithFields(logger.Fields{"error": err}).Debug("Command failed")
		os.Exit(1)
	}
}

// withOrchestrator dials the wallet, restores or requests the connection and
// runs fn with an orchestrator on the configured stores.
func withOrchestrator(cmd *cobra.Command, fn func(ctx context.Context, o *onchain.Orchestrator) error) error {
	ctx := cmd.Context()

	transport, closeWallet, err := onchain.DialWallet(ctx, cfg.WalletRPCURL)
	if err != nil {
		return err
	}
	defer closeWallet()

	st, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	opts := []onchain.OrchestratorOption{
		onchain.WithConfig(*cfg),
		onchain.WithActionStore(st.actions),
		onchain.WithLocalStore(st.local),
		onchain.WithProgress(func(steps []onchain.Step) {
			for _, s := range steps {
				if s.Status == onchain.StepProcessing {
					fmt.Fprintf(cmd.ErrOrStderr(), "... %s\n", s.Name)
				}
			}
		}),
	}
	if st.guard != nil {
		opts = append(opts, onchain.WithGuard(st.guard))
	}

	o := onchain.NewOrchestrator(transport, opts...)
	if err := o.Session().Reconnect(ctx); err != nil {
		return err
	}
	if !o.Session().IsConnected() {
		if err := o.Connect(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, o)
}

// saveNoteLocally stores note without dialing the wallet
func saveNoteLocally(cmd *cobra.Command, note onchain.Note) error {
	ctx := cmd.Context()
	st, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	o := onchain.NewOrchestrator(nil,
		onchain.WithConfig(*cfg),
		onchain.WithActionStore(st.actions),
		onchain.WithLocalStore(st.local),
	)
	result, err := o.SaveNote(ctx, note, false)
	if err != nil {
		return err
	}
	return printResult(cmd, result)
}

type stores struct {
	actions onchain.ActionStore
	local   onchain.LocalStore
	// guard is nil for in-process stores, the orchestrator then uses its own
	guard inflight.Guard
	close func()
}

// openStores returns the redis backed stores when a redis URL is configured
// and in-process stores otherwise
func openStores(ctx context.Context) (*stores, error) {
	if cfg.RedisURL == "" {
		logger.WithFields(logger.Fields{"stores": "memory"}).Warn("No redis configured, action records and notes are kept in memory only")
		return &stores{
			actions: onchain.NewMemoryActionStore(),
			local:   onchain.NewMemoryLocalStore(),
			close:   func() {},
		}, nil
	}

	client, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("couldn't reach redis: %w", err)
	}
	return &stores{
		actions: redisstore.NewActionStore(client, redisOptions(redisstore.WithActionStoreKeyPrefix)...),
		local:   redisstore.NewLocalStore(client, redisOptions(redisstore.WithLocalStoreKeyPrefix)...),
		guard:   redisstore.NewInFlightGuard(client, redisOptions(redisstore.WithInFlightGuardKeyPrefix)...),
		close:   func() { client.Close() },
	}, nil
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// redisOptions returns the key prefix option of a store when --redis-prefix is set
func redisOptions[T any](withPrefix func(string) T) []T {
	if redisPrefix == "" {
		return nil
	}
	return []T{withPrefix(redisPrefix)}
}

func newNote() onchain.Note {
	id := noteID
	if id == "" {
		id = uuid.NewString()
	}
	return onchain.Note{
		ID:        id,
		Title:     noteTitle,
		Content:   noteContent,
		Font:      noteFont,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func readInput(v any) error {
	raw, err := os.ReadFile(inputFile)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("couldn't parse %s: %w", inputFile, err)
	}
	return nil
}

// printResult writes the transactions and steps of result. A nil result is a
// local only save.
func printResult(cmd *cobra.Command, result *onchain.ActionResult) error {
	out := cmd.OutOrStdout()
	if result == nil {
		fmt.Fprintln(out, "saved locally")
		return nil
	}
	if result.FeeTx != nil {
		fmt.Fprintf(out, "fee tx:  %s\n", result.FeeTx.Hash.Hex())
	}
	if result.CallTx != nil {
		fmt.Fprintf(out, "call tx: %s\n", result.CallTx.Hash.Hex())
	}
	if result.TokenID != nil {
		fmt.Fprintf(out, "token id: %s\n", result.TokenID)
	}
	for _, s := range result.Steps {
		fmt.Fprintf(out, "[%s] %s %s\n", s.Status, s.Name, s.Message)
	}
	return nil
}
