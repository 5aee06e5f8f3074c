package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"livehost-go/internal/audio"
	"livehost-go/internal/gemini"
)

var checkFlags struct {
	speech  bool
	timeout time.Duration
}

// checkCmd は API キーとモデルの疎通を確認します。
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Gemini API への接続とクォータの状態を確認します。",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkFlags.speech, "speech", false, "音声合成も試す")
	checkCmd.Flags().DurationVar(&checkFlags.timeout, "timeout", 30*time.Second, "確認全体のタイムアウト")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	live := cfg.LiveAPIConfig()
	if len(live.Keys()) == 0 {
		return fmt.Errorf("gemini.api_key (または GEMINI_API_KEY) が設定されていません")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkFlags.timeout)
	defer cancel()

	quota := gemini.NewQuotaTracker()
	answerer, err := gemini.NewAnswerClient(ctx, live, quota)
	if err != nil {
		return err
	}
	defer answerer.Close()

	out := cmd.OutOrStdout()
	result, err := answerer.Ping(ctx)
	if err != nil {
		fmt.Fprintf(out, "❌ %s: %v (quota: %s)\n", result.Model, err, result.Quota)
		return err
	}
	fmt.Fprintf(out, "✅ %s: %s (quota: %s, keys: %d)\n", result.Model, result.Latency.Round(time.Millisecond), result.Quota, len(live.Keys()))

	if !checkFlags.speech {
		return nil
	}
	synth, err := gemini.NewSpeechClient(ctx, live, quota)
	if err != nil {
		return err
	}
	start := time.Now()
	pcm, err := synth.Synthesize(ctx, "Halo kak, tes suara.", cfg.Host)
	if err != nil {
		fmt.Fprintf(out, "❌ %s: %v\n", live.SpeechModel, err)
		return err
	}
	clip := audio.DecodePCM16(pcm, live.SampleRate)
	fmt.Fprintf(out, "✅ %s: %s of audio in %s (voice: %s)\n",
		live.SpeechModel, clip.Duration().Round(100*time.Millisecond), time.Since(start).Round(time.Millisecond), gemini.VoiceName(cfg.Host.Gender))
	return nil
}
