package discovery

// fragment is the staging record for a device the protocols have only
// partially described. Fields stay empty until some announcement fills
// them in. Fragments are never handed to consumers and are kept after
// promotion so late-arriving fields still merge through the usual path.
type fragment struct {
	id            string
	discoveryName string
	friendlyName  string
	host          string
	manufacturer  string
	modelName     string
	udn           string
}

// announceable reports whether the fragment carries enough information
// to be promoted into the public registry: a host and a friendly name,
// from any combination of sources.
func (f *fragment) announceable() bool {
	return f.host != "" && f.friendlyName != ""
}
