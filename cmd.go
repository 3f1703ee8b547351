package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jdxj/fdecrypt/ncm"
	"github.com/jdxj/fdecrypt/tag"
)

var (
	ErrFindInputFailed = errors.New("find input files failed")
	ErrNoInput         = errors.New("no input file")
	ErrInvalidOutput   = errors.New("invalid output")
	ErrStdoutMultiple  = errors.New("stdout output needs exactly one input file")
	ErrSomeFailed      = errors.New("some files failed")
)

var version = "dev"

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fdecrypt",
		Short: "Decrypt ncm and qmc music files",
		Long: "fdecrypt decrypts NetEase Cloud Music (.ncm) and QQ Music (.qmc0, .qmc3, .qmcflac) files.\n" +
			"NCM metadata and cover art are written into the decrypted audio.",
		Example: "  fdecrypt -i ~/Music/CloudMusic -o ./out\n" +
			"  fdecrypt -f a.ncm,b.qmcflac\n" +
			"  fdecrypt -t qmc0 -S -f track > track.mp3",
		Args:          cobra.NoArgs,
		RunE:          rootCmdRun,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// flags
	flags := cmd.Flags()
	flags.StringP("input", "i", "", "specifies a directory to search for encrypted files")
	flags.StringSliceP("file", "f", nil, "specifies a certain encrypted file")
	flags.StringP("output", "o", "./", "specifies the directory to save the decrypted result")
	flags.StringP("type", "t", "", "forces the input type: ncm, qmc0, qmc3 or qmcflac")
	flags.BoolP("force", "F", false, "overwrites existing output files")
	flags.BoolP("stdout", "S", false, "writes the decrypted result to stdout")
	flags.Bool("no-tag", false, "does not embed ncm metadata and cover")
	flags.IntP("workers", "w", 0, "number of files decrypted in parallel (default number of CPUs)")
	flags.BoolP("quiet", "q", false, "only reports errors")
	flags.String("log-level", "info", "log level: trace, debug, info, warn or error")
	flags.StringP("config", "c", "", "reads settings from a yaml file")

	cmd.AddCommand(newProbeCmd(), newVersionCmd())
	return cmd
}

func newLogger(cmd *cobra.Command, cfg *Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if cfg.Quiet && level > logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	log.SetLevel(level)
	return log, nil
}

func rootCmdRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	inputFiles, err := getInputs(cfg.Input, cfg.Files, cfg.Type)
	if err != nil {
		return err
	}

	var tagger tag.Embedder
	if !cfg.NoTag {
		tagger = &tag.Tagger{}
	}

	if cfg.Stdout {
		if len(inputFiles) != 1 {
			return ErrStdoutMultiple
		}
		return decryptToStdout(cmd, log, inputFiles[0], tagger)
	}

	if err = checkOutput(cfg.Output); err != nil {
		return err
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		wg     sync.WaitGroup
		failed int32
	)
	for _, in := range inputFiles {
		j := newJob(log, in, tagger)

		wg.Add(1)
		err = pool.Submit(func() {
			defer wg.Done()

			out, err := j.run(cfg.Output, cfg.Force)
			if err != nil {
				j.log.WithError(err).Error("decrypt failed")
				atomic.AddInt32(&failed, 1)
				return
			}
			j.log.WithField("output", out).Info("decrypt success")
		})
		if err != nil {
			wg.Done()
			j.log.WithError(err).Error("failed submitting job")
			atomic.AddInt32(&failed, 1)
		}
	}

	wg.Wait()

	if n := atomic.LoadInt32(&failed); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrSomeFailed, n, len(inputFiles))
	}
	return nil
}

func newJob(log *logrus.Logger, in input, tagger tag.Embedder) *job {
	return &job{
		path:   in.path,
		typ:    in.typ,
		log:    log.WithField("file", in.path),
		tagger: tagger,
	}
}

func decryptToStdout(cmd *cobra.Command, log *logrus.Logger, in input, tagger tag.Embedder) error {
	audio, _, err := newJob(log, in, tagger).decrypt()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(audio)
	return err
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE...",
		Short: "Print the audio format of ncm files without decrypting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				format, err := ncm.Probe(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, format)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "fdecrypt %s\n", version)
		},
	}
}

// input is a file to decrypt together with its resolved type.
type input struct {
	path string
	typ  string
}

func getInputsFromDir(dir string) ([]input, error) {
	if dir == "" {
		return nil, nil
	}
	var inputFiles []input
	err := filepath.Walk(dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		typ, err := inputType(info.Name(), "")
		if err != nil {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		inputFiles = append(inputFiles, input{path: abs, typ: typ})
		return nil
	})
	return inputFiles, err
}

// getInputsFromFile resolves explicit files; forced applies only to them.
func getInputsFromFile(files []string, forced string) ([]input, error) {
	var inputFiles []input
	for _, v := range files {
		info, err := os.Stat(v)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrNotSupported, v)
		}
		typ, err := inputType(v, forced)
		if err != nil {
			return nil, err
		}
		fileAbs, err := filepath.Abs(v)
		if err != nil {
			return nil, err
		}
		inputFiles = append(inputFiles, input{path: fileAbs, typ: typ})
	}
	return inputFiles, nil
}

// getInputs merges both sources, drops duplicates and sorts the result.
// A file named by -f keeps its forced type even if -i also finds it.
func getInputs(dir string, files []string, forced string) ([]input, error) {
	inputFiles := make(map[string]string)
	list, err := getInputsFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFindInputFailed, err)
	}
	for _, v := range list {
		inputFiles[v.path] = v.typ
	}

	list, err = getInputsFromFile(files, forced)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFindInputFailed, err)
	}
	for _, v := range list {
		inputFiles[v.path] = v.typ
	}
	if len(inputFiles) == 0 {
		return nil, ErrNoInput
	}

	sorted := make([]input, 0, len(inputFiles))
	for path, typ := range inputFiles {
		sorted = append(sorted, input{path: path, typ: typ})
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].path < sorted[j].path
	})
	return sorted, nil
}

func checkOutput(output string) error {
	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOutput, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidOutput, info.Name())
	}
	return nil
}
