package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Keyring-Network/gavryn-tutor/internal/agent"
	"github.com/Keyring-Network/gavryn-tutor/internal/bootstrap"
	"github.com/Keyring-Network/gavryn-tutor/internal/knowledge"
	"github.com/Keyring-Network/gavryn-tutor/internal/secrets"
	"github.com/Keyring-Network/gavryn-tutor/internal/store/memory"
	"github.com/Keyring-Network/gavryn-tutor/internal/websearch"
)

func newIndexCmd() *cobra.Command {
	var kbPath, cacheDir string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the knowledge base embedding cache",
		Long: `Load the knowledge base, embed every problem with the configured
embedding model and write the cache file. An up to date cache is reused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadResolvedConfig()
			if err != nil {
				return err
			}
			if kbPath != "" {
				cfg.KnowledgeBasePath = kbPath
			}
			if cacheDir != "" {
				cfg.EmbeddingCacheDir = cacheDir
			}
			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			kb, err := bootstrap.LoadKnowledge(cmd.Context(), cfg, embedder)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "entries:     %d\n", kb.Retriever.Len())
			fmt.Fprintf(out, "threshold:   %.2f\n", kb.Retriever.Threshold())
			fmt.Fprintf(out, "model:       %s\n", kb.Index.Model())
			fmt.Fprintf(out, "dimension:   %d\n", kb.Index.Dim())
			fmt.Fprintf(out, "fingerprint: %s\n", kb.Index.Fingerprint())
			if cfg.EmbeddingCacheDir != "" {
				fmt.Fprintf(out, "cache:       %s\n", knowledge.CachePath(cfg.EmbeddingCacheDir, kb.Index.Fingerprint()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kbPath, "kb", "", "knowledge base JSON file (overrides KNOWLEDGE_BASE_PATH)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "embedding cache directory (overrides EMBEDDING_CACHE_DIR)")
	return cmd
}

type classifyVerdict struct {
	Question string `json:"question"`
	IsMath   bool   `json:"is_math"`
	FastPath bool   `json:"fast_path"`
	Routed   string `json:"route"`
}

func newClassifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <question>",
		Short: "Show how a question would be routed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			classifier, err := bootstrap.NewClassifier(cfg)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			verdict := classifyVerdict{
				Question: question,
				IsMath:   classifier.IsMathQuestion(question),
				FastPath: classifier.IsBasicArithmeticOrTheory(question),
			}
			switch {
			case !verdict.IsMath:
				verdict.Routed = "reject"
			case verdict.FastPath:
				verdict.Routed = "direct"
			default:
				verdict.Routed = "knowledge_base"
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(verdict)
			}
			fmt.Fprintf(out, "math: %t\nfast path: %t\nroute: %s\n", verdict.IsMath, verdict.FastPath, verdict.Routed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the verdict as JSON")
	return cmd
}

func newAskCmd() *cobra.Command {
	var allowWeb bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the tutor one question",
		Long: `Run a single question through the full routing pipeline with a throwaway
session. When the knowledge base has no match the tutor asks for consent to
search the web; pass --web to give it up front.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadResolvedConfig()
			if err != nil {
				return err
			}
			classifier, err := bootstrap.NewClassifier(cfg)
			if err != nil {
				return err
			}
			systemPrompt, err := bootstrap.LoadSystemPrompt(cfg)
			if err != nil {
				return err
			}
			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			kb, err := bootstrap.LoadKnowledge(cmd.Context(), cfg, embedder)
			if err != nil {
				return err
			}
			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}
			var searcher websearch.Searcher
			if allowWeb {
				cached, err := bootstrap.NewInlineSearcher(cfg)
				if err != nil {
					return err
				}
				defer cached.Close()
				searcher = cached
			}
			tutor, err := agent.New(agent.Options{
				Classifier:   classifier,
				Retriever:    kb.Retriever,
				Provider:     provider,
				Searcher:     searcher,
				Sessions:     memory.New(),
				SystemPrompt: systemPrompt,
				History:      agent.HistoryPolicy{MaxTurns: cfg.HistoryMaxTurns},
			})
			if err != nil {
				return err
			}

			sessionID := uuid.NewString()
			question := strings.Join(args, " ")
			result, err := tutor.Ask(cmd.Context(), sessionID, question)
			if err != nil {
				return err
			}
			if result.Kind == agent.KindNeedsConfirmation && allowWeb {
				result, err = tutor.SearchAndAnswer(cmd.Context(), sessionID, question)
				if err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Display())
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowWeb, "web", false, "search the web when the knowledge base has no match")
	return cmd
}

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Inspect recorded answer feedback",
	}
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List feedback records from the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadResolvedConfig()
			if err != nil {
				return err
			}
			stores, err := bootstrap.OpenStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()
			records, err := stores.Feedback.ListFeedback(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(records)
			}
			for _, record := range records {
				fmt.Fprintf(out, "%-4s %s | %s\n", record.Label, oneLine(record.Question), oneLine(record.Answer))
			}
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print records as a JSON array")
	cmd.AddCommand(list)
	return cmd
}

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage sealed credentials",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seal <value>",
		Short: "Encrypt a credential with TUTOR_SECRETS_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			key, err := secrets.ParseKey(cfg.SecretsKey)
			if err != nil {
				return err
			}
			if secrets.IsSealed(args[0]) {
				return errors.New("value is already sealed")
			}
			sealed, err := secrets.Seal(key, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	})
	return cmd
}

func oneLine(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > 60 {
		return text[:57] + "..."
	}
	return text
}
