package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"axiom/config"
	"axiom/db"
	"axiom/etc"
	"axiom/llm"
	"axiom/ui"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List recent exchanges in a table",
	Run:   runLog,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize recent exchanges with the language model",
	Run:   runSummarize,
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse exchanges in a live terminal UI",
	Run:   runBrowse,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write config overrides stored in the database",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a config override",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mainLogger, _, _, _, dataLogger := createLoggers()
		pool, queries := openDatabase(cmd.Context(), mainLogger.Fatal)
		defer pool.Close()

		if err := config.New(queries).Set(cmd.Context(), args[0], args[1]); err != nil {
			mainLogger.Fatal("set config", "error", err)
		}
		dataLogger.Info("saved", "key", args[0])
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored config override",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mainLogger, _, _, _, _ := createLoggers()
		pool, queries := openDatabase(cmd.Context(), mainLogger.Fatal)
		defer pool.Close()

		value, err := config.New(queries).Get(cmd.Context(), args[0])
		if err != nil {
			mainLogger.Fatal("get config", "error", err)
		}
		fmt.Println(value)
	},
}

func openDatabase(
	ctx context.Context,
	fatal func(interface{}, ...interface{}),
) (*pgxpool.Pool, *db.Queries) {
	databaseURL := viper.GetString("database_url")
	if databaseURL == "" {
		fatal("missing DATABASE_URL or --database-url=")
	}
	pool, queries, err := db.OpenDatabase(ctx, databaseURL)
	if err != nil {
		fatal("initialize database", "error", err)
	}
	return pool, queries
}

func recentExchanges(cmd *cobra.Command) []db.Exchange {
	mainLogger, _, _, _, _ := createLoggers()
	pool, queries := openDatabase(cmd.Context(), mainLogger.Fatal)
	defer pool.Close()

	count, _ := cmd.Flags().GetInt("count")
	guildID, _ := cmd.Flags().GetString("guild")

	exchanges, err := db.NewJournal(queries).Recent(cmd.Context(), guildID, count)
	if err != nil {
		mainLogger.Fatal("fetch exchanges", "error", err)
	}
	return exchanges
}

func runLog(cmd *cobra.Command, args []string) {
	exchanges := recentExchanges(cmd)
	if len(exchanges) == 0 {
		fmt.Println("No exchanges found.")
		return
	}
	renderExchanges(os.Stdout, exchanges)
}

func renderExchanges(w io.Writer, exchanges []db.Exchange) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Source", "User", "Status", "Duration", "Question", "Answer"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, ex := range exchanges {
		table.Append([]string{
			ex.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			ex.Source,
			ex.UserID,
			ex.Status,
			(time.Duration(ex.DurationMs) * time.Millisecond).String(),
			oneLine(ex.Question, 40),
			oneLine(ex.Answer, 60),
		})
	}

	table.Render()
}

func oneLine(s string, limit int) string {
	return etc.Truncate(strings.Join(strings.Fields(s), " "), limit, "…")
}

func runSummarize(cmd *cobra.Command, args []string) {
	mainLogger, _, _, _, _ := createLoggers()
	exchanges := recentExchanges(cmd)

	languageModel, closeModel, err := newLanguageModel(cmd.Context())
	if err != nil {
		mainLogger.Fatal("create language model", "error", err)
	}
	defer closeModel()

	summary, err := llm.SummarizeTranscript(
		cmd.Context(),
		languageModel,
		transcriptLines(exchanges),
	)
	if err != nil {
		mainLogger.Fatal("summarize", "error", err)
	}

	fmt.Println(summary)
}

// transcriptLines turns newest-first exchanges into a chronological
// question and answer transcript. Failed exchanges keep only the question.
func transcriptLines(exchanges []db.Exchange) []llm.TranscriptLine {
	var lines []llm.TranscriptLine
	for i := len(exchanges) - 1; i >= 0; i-- {
		ex := exchanges[i]
		lines = append(lines, llm.TranscriptLine{
			Time:    ex.CreatedAt,
			Speaker: ex.UserID,
			Text:    ex.Question,
		})
		if ex.Answer != "" {
			lines = append(lines, llm.TranscriptLine{
				Time:    ex.CreatedAt.Add(time.Duration(ex.DurationMs) * time.Millisecond),
				Speaker: "axiom",
				Text:    ex.Answer,
			})
		}
	}
	return lines
}

func runBrowse(cmd *cobra.Command, args []string) {
	mainLogger, _, _, _, _ := createLoggers()
	pool, queries := openDatabase(cmd.Context(), mainLogger.Fatal)
	defer pool.Close()

	count, _ := cmd.Flags().GetInt("count")
	guildID, _ := cmd.Flags().GetString("guild")
	journal := db.NewJournal(queries)

	fetch := func(ctx context.Context) ([]db.Exchange, error) {
		return journal.Recent(ctx, guildID, count)
	}

	existing, err := fetch(cmd.Context())
	if err != nil {
		mainLogger.Fatal("fetch exchanges", "error", err)
	}

	browser := ui.NewBrowser(existing, fetch, 5*time.Second)
	if _, err := tea.NewProgram(browser).Run(); err != nil {
		mainLogger.Fatal("browse", "error", err)
	}
}
