package cli

// CmdServe exposes the serve command for flag inspection in tests
var CmdServe = cmdServe
