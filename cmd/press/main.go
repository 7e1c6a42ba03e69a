package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/go-press/press"
)

var (
	flagOutput string
	flagKeep   bool
	flagQuiet  bool
)

var rootCmd = &cobra.Command{
	Use:   "press",
	Short: "Streaming compression tool",
	Long: `press compresses and decompresses files or standard streams.

Supported methods: gzip, bzip2, xz, lzma, lz4, lz4_legacy, zstd, brotli, snappy.
Decompression auto-detects the format from the input's magic bytes.
Use "-" for standard input/output.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var compressCmd = &cobra.Command{
	Use:   "compress <method> <file|->",
	Short: "Compress a file or stdin with the given method",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := press.Compress(args[0], args[1], flagOutput, options())
		return err
	},
}

var decompressCmd = &cobra.Command{
	Use:   "decompress <file|->",
	Short: "Decompress a file or stdin, auto-detecting the format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := press.Decompress(args[0], flagOutput, options())
		return err
	},
}

func options() *press.Options {
	opts := press.DefaultOptions()
	opts.Keep = flagKeep
	if !flagQuiet {
		opts.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return opts
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "Output path (default: derived from the input path)")
	rootCmd.PersistentFlags().BoolVarP(&flagKeep, "keep", "k", false, "Keep the input file when the output path is derived")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress messages")
	rootCmd.AddCommand(compressCmd, decompressCmd)
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
