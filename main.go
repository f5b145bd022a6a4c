package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"voicediary/analysis"
	"voicediary/audio"
	"voicediary/chime"
	"voicediary/config"
	"voicediary/doctor"
	"voicediary/encoder"
	"voicediary/log"
	"voicediary/nettrace"
	"voicediary/shutdown"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configFile string
	fakeAudio  string
	headless   bool
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"logpath": "log.path",
	"backend": "capture.backend",
	"device":  "capture.device",
	"lang":    "capture.language",
	"store":   "store.path",
	"cache":   "cache.path",
	"steps":   "onboarding.steps",
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var f rootFlags

	root := &cobra.Command{
		Use:   "voicediary",
		Short: "Spoken health diary for elderly users and their relatives",
		Long: `voicediary records a short spoken report, turns it into a structured
clinical summary with a severity rating, and keeps a diary that relatives
can follow with a six-digit pairing code.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd.Context(), v, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configFile, "config", "", "config file (default: voicediary.yaml in the config directory)")
	pf.String("logpath", "", "log directory (default: OS-specific location, use ./ for current dir)")
	pf.String("backend", "", "capture backend: recorder or engine")
	pf.String("device", "", "use the microphone whose name contains this text")
	pf.String("lang", "", "language code for speech recognition")
	pf.String("store", "", "diary database path (:memory: keeps it in process)")
	pf.String("cache", "", "session cache file")
	pf.Int("steps", 0, "number of onboarding pages")
	bindFlags(v, pf)

	runFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&f.fakeAudio, "fake-audio", "", "read microphone input from a WAV file")
		cmd.Flags().BoolVar(&f.headless, "headless", false, "read line commands from stdin instead of the terminal UI")
	}
	runFlags(root)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the diary (the default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd.Context(), v, f)
		},
	}
	runFlags(runCmd)

	root.AddCommand(runCmd, newAnalyzeCmd(v, &f), newDevicesCmd(), newDoctorCmd(v, &f), newVersionCmd())
	return root
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		v.BindPFlag(key, fs.Lookup(name))
	}
}

func loadConfig(v *viper.Viper, file string) (*config.Config, error) {
	cfg, err := config.Load(v, file)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// setupLogging enables the diagnostics log and routes crash output next to
// it. Failures only cost diagnostics.
func setupLogging(flagPath string) {
	dir, err := log.ResolveDir(flagPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to resolve log directory: %v\n", err)
		return
	}
	log.SetDir(dir)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
		return
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	crashFile, err := os.OpenFile(filepath.Join(log.Dir(), "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
		crashFile.Close()
	}
}

func runApp(parent context.Context, v *viper.Viper, f rootFlags) error {
	cfg, err := loadConfig(v, f.configFile)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogPath)
	defer log.Close()

	ctx, stop := shutdown.Context(parent)
	defer stop()

	headless := f.headless || !term.IsTerminal(int(os.Stdin.Fd()))
	a, err := newApp(ctx, cfg, appOptions{fakeAudio: f.fakeAudio, realtime: f.fakeAudio != "" && !headless})
	if err != nil {
		log.Errorf("startup: %v", err)
		return err
	}
	defer a.Close()

	log.SessionStart(cfg.Capture.Backend, a.client.Model())
	defer func() { log.SessionEnd(int(a.reports.Load())) }()

	if headless {
		chime.Disable()
		return runScripted(ctx, a.ctrl, os.Stdin, os.Stdout)
	}
	return runTUI(ctx, a)
}

func newAnalyzeCmd(v *viper.Viper, f *rootFlags) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "analyze [file.wav]",
		Short: "Analyze one report and print the result as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (text == "") == (len(args) == 0) {
				return fmt.Errorf("give either --text or a WAV file")
			}
			cfg, err := config.Load(v, f.configFile)
			if err != nil {
				return err
			}
			setupLogging(cfg.LogPath)
			defer log.Close()

			req := analysis.NewTextRequest(text)
			if len(args) == 1 {
				flac, err := encodeWAV(args[0])
				if err != nil {
					return err
				}
				req = analysis.NewAudioRequest(flac, "audio/flac")
			}

			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()
			res := newAnalysisClient(cfg).Analyze(ctx, req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "analyze this transcript instead of audio")
	return cmd
}

// encodeWAV reads a 16 kHz mono 16-bit WAV file and returns it as FLAC.
func encodeWAV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) <= audio.WAVHeaderSize {
		return nil, fmt.Errorf("%s: no audio data", path)
	}
	enc, err := encoder.NewFlac()
	if err != nil {
		return nil, err
	}
	s := encoder.NewStream(enc)
	out, err := s.Write(data[audio.WAVHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", path, err)
	}
	tail, err := s.Flush()
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", path, err)
	}
	return append(out, tail...), nil
}

func newDevicesCmd() *cobra.Command {
	var pick bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List microphones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := audio.NewContext()
			if err != nil {
				return err
			}
			defer ctx.Close()

			if pick {
				dev, err := audio.SelectDevice(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "capture:\n  device: %q\n", dev.Name)
				return nil
			}
			devices, err := ctx.Devices()
			if err != nil {
				return err
			}
			for i, d := range devices {
				suffix := ""
				if audio.IsBluetooth(d.Name) {
					suffix = " (bluetooth)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s%s\n", i+1, d.Name, suffix)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pick, "select", false, "choose interactively and print the config snippet")
	return cmd
}

func newDoctorCmd(v *viper.Viper, f *rootFlags) *cobra.Command {
	var record time.Duration
	var clip bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check microphone, analysis endpoint and diary store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, f.configFile)
			if err != nil {
				return err
			}
			env := doctor.Env{Config: cfg, HTTP: nettrace.New(10 * time.Second), Record: record, Clipboard: clip}
			if actx, err := audio.NewContext(); err == nil {
				env.Audio = actx
				defer actx.Close()
			}
			if store, err := openStore(cfg.StorePath); err == nil {
				env.Store = store
				defer store.Close()
			}
			if code := doctor.Run(cmd.Context(), cmd.OutOrStdout(), doctor.Checks(env)); code != 0 {
				return fmt.Errorf("doctor: checks failed")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&record, "record", 3*time.Second, "how long the microphone check listens")
	cmd.Flags().BoolVar(&clip, "clipboard", true, "include the clipboard check")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voicediary %s\n", version)
		},
	}
}
