/*
Package cli provides shared helpers for the overture command: typed
errors with exit codes, output rendering, and signal plumbing.

Errors and exit codes:

Commands return *ConfigError for configuration problems and
*CommandError for execution failures; Execute maps them to process exit
codes with ExitCode (2 for configuration, 1 otherwise):

	if err := config.Initialize(path); err != nil {
		return cli.NewConfigError("", err.Error())
	}

Output rendering:

List commands render tables by default and JSON on request:

	format, err := cli.ParseFormat(flagFormat)
	...
	tbl := cli.NewTable(os.Stdout, "SEQ", "ACTION", "VERDICT")
	tbl.Row("1", "act-7", "APPROVED")
	return tbl.Flush()

Signal handling:

	ctx := cli.SetupSignalHandler()     // cancelled on SIGINT/SIGTERM
	reload := cli.WaitForReload()       // receives SIGHUP
*/
package cli
