package app

const (
	Name               = "beacon"
	DisplayName        = "Beacon"
	SourceURL          = "https://github.com/ahmed-lotfy-abousalem/Beacon-App-sub001"
	ConfigFilename     = "config.json"
	DBFilename         = "app.db"
	LogFilename        = "app.log"
	IdentityFilename   = "identity.json"
	RecentMessagesLoad = 200
)
