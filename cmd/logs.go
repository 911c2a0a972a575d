// -- cmd/logs.go --
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

var logsFlags struct {
	follow bool
	lines  int
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the relay's log file",
	Long: `logs prints the trailing entries of the configured logger.log_file. The
file sink is always JSON, so this is the structured view of what the console
showed. With --follow the command keeps streaming new entries until
interrupted, surviving lumberjack rotations.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogs(cmd)
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFlags.follow, "follow", "f", false, "keep the file open and stream new entries")
	logsCmd.Flags().IntVarP(&logsFlags.lines, "lines", "n", 10, "number of trailing lines to print first")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command) error {
	path := loadedConfig.Logger.LogFile
	if path == "" {
		return fmt.Errorf("logger.log_file is not configured; nothing to read")
	}

	offset, err := tailOffset(path, logsFlags.lines)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    logsFlags.follow,
		ReOpen:    logsFlags.follow,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tailing log file: %w", err)
	}
	defer t.Cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				// Without --follow the channel closes at EOF.
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("reading log file: %w", line.Err)
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}

// tailOffset returns the byte offset at which the last n lines of the file
// start, scanning backwards in chunks so large rotated logs are never read
// whole. A file with fewer than n lines reads from the beginning; n <= 0
// starts at EOF.
func tailOffset(path string, n int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 || n <= 0 {
		return size, nil
	}

	const chunk = 32 * 1024
	buf := make([]byte, chunk)
	pos := size
	count := 0

	for pos > 0 {
		readSize := int64(chunk)
		if pos < readSize {
			readSize = pos
		}
		if _, err := f.ReadAt(buf[:readSize], pos-readSize); err != nil {
			return 0, err
		}

		for i := int(readSize) - 1; i >= 0; i-- {
			if buf[i] != '\n' {
				continue
			}
			abs := pos - readSize + int64(i)
			// The newline terminating the final line is not a boundary.
			if abs == size-1 {
				continue
			}
			count++
			if count == n {
				return abs + 1, nil
			}
		}
		pos -= readSize
	}
	return 0, nil
}
