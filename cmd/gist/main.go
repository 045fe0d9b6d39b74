package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/gistlabs/gist/internal/cluster"
	"github.com/gistlabs/gist/internal/config"
	"github.com/gistlabs/gist/internal/embed"
	"github.com/gistlabs/gist/internal/lexical"
	"github.com/gistlabs/gist/internal/llm"
	gistmcp "github.com/gistlabs/gist/internal/mcp"
	"github.com/gistlabs/gist/internal/storage"
	"github.com/gistlabs/gist/internal/topics"
	"github.com/gistlabs/gist/internal/transcript"
)

const version = "0.1.0-dev"

const (
	defaultLLM   = "openai/gpt-4o-mini"
	defaultEmbed = "openai/text-embedding-3-small"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = runAdd(os.Args[2:])
	case "topics":
		err = runTopics(os.Args[2:])
	case "notes":
		err = runNotes(os.Args[2:])
	case "rename":
		err = runRename(os.Args[2:])
	case "reassign":
		err = runReassign(os.Args[2:])
	case "tag":
		err = runTag(os.Args[2:])
	case "categorize":
		err = runCategorize(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "clear":
		err = runClear(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("gist %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtimeFlags are the settings every command accepts; anything left over is
// returned as positional arguments for the command to interpret.
type runtimeFlags struct {
	opts config.ResolveOptions
	rest []string
}

func parseRuntimeFlags(args []string) (runtimeFlags, error) {
	var rf runtimeFlags
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			rf.opts.ConfigPath = args[i+1]
			i++
		case args[i] == "--db" && i+1 < len(args):
			rf.opts.CLIDBPath = args[i+1]
			i++
		case args[i] == "--llm" && i+1 < len(args):
			rf.opts.CLILLM = args[i+1]
			i++
		case args[i] == "--embed" && i+1 < len(args):
			rf.opts.CLIEmbed = args[i+1]
			i++
		case args[i] == "--transcript-url" && i+1 < len(args):
			rf.opts.CLITranscript = args[i+1]
			i++
		default:
			rf.rest = append(rf.rest, args[i])
		}
	}
	return rf, nil
}

// runtime is everything a command needs once configuration is resolved.
type runtime struct {
	cfg    config.ResolvedConfig
	repo   *storage.SQLiteRepository
	engine *cluster.Engine
}

func (r *runtime) Close() {
	_ = r.repo.Close()
}

func openRuntime(rf runtimeFlags) (*runtime, error) {
	cfg, err := config.ResolveConfig(rf.opts)
	if err != nil {
		return nil, err
	}

	llmCfg, err := llm.NewConfig(cfg.LLM.Or(defaultLLM))
	if err != nil {
		return nil, err
	}
	summarizer, err := llm.NewClient(llmCfg)
	if err != nil {
		return nil, err
	}

	embCfg, err := embed.NewConfig(cfg.Embed.Or(defaultEmbed))
	if err != nil {
		return nil, err
	}
	embedder, err := embed.NewClient(embCfg)
	if err != nil {
		return nil, err
	}

	clusterCfg, err := clusterConfig(cfg.Cluster)
	if err != nil {
		return nil, err
	}

	repo, err := storage.NewSQLiteRepository(cfg.DBPath.Value)
	if err != nil {
		return nil, err
	}
	store, err := topics.NewStore(context.Background(), repo)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &runtime{
		cfg:    cfg,
		repo:   repo,
		engine: cluster.NewEngine(store, summarizer, embedder, clusterCfg),
	}, nil
}

func clusterConfig(v config.ClusterValues) (cluster.Config, error) {
	def := cluster.DefaultConfig()
	cfg := def

	var err error
	if cfg.NoteWeight, err = v.NoteWeight.Float(def.NoteWeight); err != nil {
		return cfg, err
	}
	if cfg.LabelWeight, err = v.LabelWeight.Float(def.LabelWeight); err != nil {
		return cfg, err
	}
	if cfg.BaseThreshold, err = v.BaseThreshold.Float(def.BaseThreshold); err != nil {
		return cfg, err
	}
	if cfg.RaisedThreshold, err = v.RaisedThreshold.Float(def.RaisedThreshold); err != nil {
		return cfg, err
	}
	if cfg.SoftCapSize, err = v.SoftCapSize.Int(def.SoftCapSize); err != nil {
		return cfg, err
	}
	if cfg.HardCap, err = v.HardCap.Int(def.HardCap); err != nil {
		return cfg, err
	}
	if cfg.CategoryThreshold, err = v.CategoryThreshold.Float(def.CategoryThreshold); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runAdd(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}

	var source, prompt, rawText string
	multi := false
	for i := 0; i < len(rf.rest); i++ {
		switch {
		case rf.rest[i] == "--prompt" && i+1 < len(rf.rest):
			prompt = rf.rest[i+1]
			i++
		case rf.rest[i] == "--text" && i+1 < len(rf.rest):
			rawText = rf.rest[i+1]
			i++
		case rf.rest[i] == "--multi" || rf.rest[i] == "-m":
			multi = true
		case strings.HasPrefix(rf.rest[i], "-") && rf.rest[i] != "-":
			return fmt.Errorf("unknown flag: %s", rf.rest[i])
		default:
			source = rf.rest[i]
		}
	}
	if source == "" && rawText == "" {
		return fmt.Errorf("usage: gist add <video-url | -> [--text <raw>] [--prompt <instructions>] [--multi]")
	}

	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	req := cluster.IngestRequest{UserPrompt: prompt, MultiTopic: multi}

	switch {
	case rawText != "":
		req.Transcript = rawText
	case source == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		req.Transcript = string(data)
	default:
		info, err := transcript.ParseVideoURL(source)
		if err != nil {
			return err
		}
		fmt.Printf("Fetching transcript for %s...\n", info.ID)
		tr, err := transcript.NewClient(rt.cfg.TranscriptURL.Value).Fetch(ctx, source)
		if err != nil {
			return err
		}
		req.Transcript = tr.Text
		req.VideoID = info.ID
		req.OriginalURL = info.CleanURL
		req.VideoTitle = tr.Title
		req.Segments = toSegments(tr.Segments)
	}

	res, err := rt.engine.Ingest(ctx, req)
	if err != nil {
		return err
	}

	for i, noteID := range res.NoteIDs {
		t := rt.engine.Store().GetTopic(res.TopicIDs[i])
		n := rt.engine.Store().GetNote(noteID)
		fmt.Printf("Filed under %q (%s)\n", t.Name, t.ID)
		fmt.Printf("  %s\n", n.Summary)
	}
	return nil
}

func toSegments(in []transcript.Segment) []topics.Segment {
	out := make([]topics.Segment, len(in))
	for i, s := range in {
		out[i] = topics.Segment{Text: s.Text, Start: s.Start, Duration: s.Duration}
	}
	return out
}

func runTopics(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}
	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	all := rt.engine.Store().Topics()
	if len(all) == 0 {
		fmt.Println("No topics yet. Ingest something with: gist add <url>")
		return nil
	}
	for _, t := range all {
		label := t.Name
		if t.DisplayTag != "" {
			label = fmt.Sprintf("%s (%s)", t.DisplayTag, t.Name)
		}
		fmt.Printf("%s  %s  [%d notes]\n", t.ID, label, len(t.SummaryIDs))
		if len(t.Aliases) > 0 {
			fmt.Printf("    aliases: %s\n", strings.Join(t.Aliases, ", "))
		}
	}
	return nil
}

func runNotes(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}

	topicID := ""
	for i := 0; i < len(rf.rest); i++ {
		switch {
		case rf.rest[i] == "--topic" && i+1 < len(rf.rest):
			topicID = rf.rest[i+1]
			i++
		default:
			return fmt.Errorf("unknown argument: %s", rf.rest[i])
		}
	}

	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	count := 0
	for _, n := range rt.engine.Store().Notes() {
		if topicID != "" && n.TopicID != topicID {
			continue
		}
		count++
		fmt.Printf("%s  (%s)\n", n.ID, n.CreatedAt.Format("2006-01-02"))
		fmt.Printf("  %s\n", lexical.TrimTitle(n.Summary, 120))
		if n.VideoTitle != "" {
			fmt.Printf("  source: %s\n", n.VideoTitle)
		}
	}
	if count == 0 {
		fmt.Println("No notes found.")
	}
	return nil
}

func runRename(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}

	var positional []string
	noteID := ""
	for i := 0; i < len(rf.rest); i++ {
		switch {
		case rf.rest[i] == "--note" && i+1 < len(rf.rest):
			noteID = rf.rest[i+1]
			i++
		default:
			positional = append(positional, rf.rest[i])
		}
	}
	if len(positional) != 2 {
		return fmt.Errorf("usage: gist rename <topic-id> <new-name> [--note <note-id>]")
	}

	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.engine.RenameTopic(context.Background(), positional[0], noteID, positional[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", res.Outcome, res.TopicID)
	return nil
}

func runReassign(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}
	if len(rf.rest) != 2 {
		return fmt.Errorf("usage: gist reassign <note-id> <topic-id>")
	}

	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.ReassignNote(context.Background(), rf.rest[0], rf.rest[1]); err != nil {
		return err
	}
	fmt.Println("Moved.")
	return nil
}

func runTag(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}
	if len(rf.rest) != 2 {
		return fmt.Errorf("usage: gist tag <topic-id> <display-tag>")
	}

	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	if strings.HasPrefix(rf.rest[0], "category_") {
		err = rt.engine.Store().UpdateCategoryDisplayTag(ctx, rf.rest[0], rf.rest[1])
	} else {
		err = rt.engine.Store().UpdateDisplayTag(ctx, rf.rest[0], rf.rest[1])
	}
	if err != nil {
		return err
	}
	fmt.Println("Tagged.")
	return nil
}

func runCategorize(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}
	if len(rf.rest) != 1 {
		return fmt.Errorf("usage: gist categorize <topic-id>")
	}

	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	catID, err := rt.engine.CategorizeTopic(context.Background(), rf.rest[0])
	if err != nil {
		return err
	}
	cat := rt.engine.Store().GetCategory(catID)
	fmt.Printf("Filed under category %q (%s)\n", cat.Name, catID)
	return nil
}

func runStats(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}
	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	st := rt.engine.Store().Summary()
	fmt.Printf("Topics:     %d\n", st.Topics)
	fmt.Printf("Notes:      %d\n", st.Notes)
	fmt.Printf("Categories: %d\n", st.Categories)
	if st.OrphanNotes > 0 {
		fmt.Printf("Orphans:    %d (evicted from over-full topics)\n", st.OrphanNotes)
	}
	return nil
}

func runClear(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}

	force := false
	for _, arg := range rf.rest {
		if arg == "--force" || arg == "-f" {
			force = true
		}
	}
	if !force {
		return fmt.Errorf("refusing to delete all data without --force")
	}

	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.Store().ClearAll(context.Background()); err != nil {
		return err
	}
	fmt.Println("All topics, notes, and categories deleted.")
	return nil
}

func runConfig(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.ResolveConfig(rf.opts)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runMCP(args []string) error {
	rf, err := parseRuntimeFlags(args)
	if err != nil {
		return err
	}
	rt, err := openRuntime(rf)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := gistmcp.NewServer(gistmcp.ServerConfig{Engine: rt.engine, Version: version})
	return gistmcp.ServeStdio(srv)
}

func printUsage() {
	fmt.Printf(`gist %s — Topic-clustering notes from video transcripts

Usage:
  gist <command> [arguments]

Commands:
  add <url | ->       Ingest a video transcript (or stdin with -) as a note
  topics              List topics with aliases and note counts
  notes               List notes (--topic <id> to filter)
  rename <id> <name>  Rename a topic (--note <id> for multi-member topics)
  reassign <n> <t>    Move a note into another topic
  tag <id> <tag>      Set a topic's (or category's) display tag
  categorize <id>     File a topic under a super category
  stats               Show store counts
  clear               Delete everything (requires --force)
  config              Print resolved configuration and its sources
  mcp                 Run the MCP server on stdio
  version             Print version

Add Flags:
  --text <raw>        Ingest raw text instead of fetching a transcript
  --prompt <text>     Extra instructions for the summarizer
  -m, --multi         Split the source into up to three topics

Global Flags:
  --config <path>     Config file (default ~/.gist/config.yaml)
  --db <path>         Database path
  --llm <spec>        LLM provider/model (e.g. openai/gpt-4o-mini)
  --embed <spec>      Embedding provider/model
  --transcript-url    Transcript service base URL
`, version)
}
