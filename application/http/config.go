package http

// ClientConfig carries the TLS and proxy settings of a client.
// Paths are read when the first call is made.
type ClientConfig struct {
	// ServerCertPath is a CA certificate trusted in addition to the system pool.
	ServerCertPath string `yaml:"server_cert_path"`

	// ClientCertPath and ClientCertKeyPath enable mutual TLS.
	// Either both or neither must be set.
	ClientCertPath    string `yaml:"client_cert_path"`
	ClientCertKeyPath string `yaml:"client_cert_key_path"`

	// SSLEngine names a hardware key engine. Engines are not supported
	// by this client and setting it fails initialization.
	SSLEngine string `yaml:"ssl_engine"`

	SkipVerify bool `yaml:"skip_verify"`

	HTTPProxy  string `yaml:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy"`
	NoProxy    string `yaml:"no_proxy"`
}

type ServerConfig struct {
	Decode DecodeOptions
	Encode EncodeOptions
}

var DefaultServerConfig = ServerConfig{
	Decode: DefaultDecodeOptions,
	Encode: DefaultEncodeOptions,
}
