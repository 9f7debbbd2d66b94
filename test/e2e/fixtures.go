package e2e

// Account known to the mock SMB server
const (
	testUsername = "svc-mountsup"
	testPassword = "Corr3ct horse"
)

// Shares exported by the mock SMB server
const (
	testShare  = "share"
	otherShare = "backups"
)

// Credential references and the files behind them
const (
	testCredentialRef  = "ref-1"
	wrongPasswordRef   = "ref-wrong"
	missingRef         = "ref-missing"
	testCredentialFile = "# mountsup e2e account\nusername=" + testUsername + "\npassword=" + testPassword + "\n"
	wrongPasswordFile  = "username=" + testUsername + "\npassword=nope\n"
)
