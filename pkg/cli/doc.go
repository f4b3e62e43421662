/*
Package cli provides command-line utilities shared by the ganymede
command: exit-coded errors, output formatting, and signal handling.

Exit Codes:

Errors carry their exit code through ExitCode. Configuration problems
exit 2, runtime failures exit 1:

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}

Output Formatting:

Commands with a --format flag render results through a Formatter:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, summary); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	sigChan := cli.WaitForShutdown()
	sig := <-sigChan
*/
package cli
