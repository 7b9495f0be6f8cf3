package config

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/trunkrs/trunk/internal/digest"
)

// Options collects the configuration layers accepted by a single CLI
// invocation: the path to the TOML config file, and the flag set the
// subcommand registered its own overrides on. Layering follows
// Trunk.toml, then TRUNK_* environment variables, then these flags,
// each superseding the last.
type Options struct {
	ConfigFile string
	Flags      *pflag.FlagSet
	// FlagKeys maps each flag's CLI name (e.g. "public-url") to the
	// dotted viper/Trunk.toml key it overrides (e.g. "build.public_url").
	// Only flags present in this map participate in the CLI layer.
	FlagKeys map[string]string
	Fs       afero.Fs
}

// proxy mirrors one [[proxy]] table entry in Trunk.toml.
type Proxy struct {
	Backend string
	Rewrite string
}

// Loaded is the fully-resolved configuration for one invocation,
// covering every subcommand's needs; callers slice out the piece they
// need (BuildConfig, WatchConfig, ServeConfig, HooksConfig).
type Loaded struct {
	Build  BuildConfig
	Watch  WatchConfig
	Serve  ServeConfig
	Hooks  HooksConfig
	Proxies []Proxy
}

func newViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("toml")

	v.SetDefault("build.target", "index.html")
	v.SetDefault("build.dist", "dist")
	v.SetDefault("build.public_url", "/")
	v.SetDefault("build.minify", string(MinifyOnRelease))
	v.SetDefault("build.filehash", true)
	v.SetDefault("watch.ignore", []string{})
	v.SetDefault("serve.port", 8080)
	v.SetDefault("serve.address", "127.0.0.1")
	v.SetDefault("serve.ws_base", "/_trunk/ws")
	return v
}

// Load resolves the full layered configuration: Trunk.toml as the
// base layer, TRUNK_<SECTION>_<KEY> environment variables next, then
// opts.Flags (if bound) taking final precedence. Grounded on
// src/config.rs's file_and_env_layers/cli_opts_layer_* cascade.
func Load(opts Options) (*Loaded, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	v := newViper(fs)

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = "Trunk.toml"
	}
	if exists, _ := afero.Exists(fs, configFile); exists {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("TRUNK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for flagName, viperKey := range opts.FlagKeys {
			flag := opts.Flags.Lookup(flagName)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(viperKey, flag); err != nil {
				return nil, err
			}
		}
	}

	var proxies []Proxy
	if err := v.UnmarshalKey("proxy", &proxies); err != nil {
		return nil, err
	}

	loaded := &Loaded{Proxies: proxies}
	loaded.Build = buildConfigFromViper(v)
	loaded.Watch = WatchConfig{
		Paths:  []string{filepath.Dir(loaded.Build.Target)},
		Ignore: v.GetStringSlice("watch.ignore"),
		Poll:   v.GetBool("watch.poll"),
	}
	loaded.Serve = serveConfigFromViper(v)
	loaded.Hooks = hooksConfigFromViper(v)
	return loaded, nil
}

func buildConfigFromViper(v *viper.Viper) BuildConfig {
	algo, _ := digest.ParseAlgorithm(v.GetString("build.integrity"))
	return BuildConfig{
		Target:      v.GetString("build.target"),
		StagingDist: v.GetString("build.staging_dist"),
		FinalDist:   v.GetString("build.dist"),
		PublicURL:   v.GetString("build.public_url"),
		Release:     v.GetBool("build.release"),
		FileHash:    v.GetBool("build.filehash"),
		Minify:      MinifyPolicy(v.GetString("build.minify")),
		Integrity:   algo,
		NoSRI:       v.GetBool("build.no_sri"),
		Tools: ToolVersions{
			Sass:        v.GetString("tools.sass"),
			TailwindCss: v.GetString("tools.tailwindcss"),
			WasmBindgen: v.GetString("tools.wasm_bindgen"),
			WasmOpt:     v.GetString("tools.wasm_opt"),
		},
		CargoFeatures: CargoFeatures{
			All:               v.GetBool("build.cargo_all_features"),
			NoDefaultFeatures: v.GetBool("build.cargo_no_default_features"),
			Features:          v.GetString("build.cargo_features"),
		},
		PatternScript:          v.GetString("build.pattern_script"),
		PatternPreload:         v.GetString("build.pattern_preload"),
		PatternParams:          v.GetStringMapString("build.pattern_params"),
		Offline:                v.GetBool("build.offline"),
		Frozen:                 v.GetBool("build.frozen"),
		Locked:                 v.GetBool("build.locked"),
		CreateNonce:            v.GetString("build.create_nonce"),
		InjectScripts:          !v.GetBool("build.no_inject_scripts"),
		InjectAutoloader:       !v.GetBool("build.no_inject_autoloader"),
		AllowSelfClosingScript: v.GetBool("build.allow_self_closing_script"),
		WorkingDirectory:       v.GetString("build.working_directory"),
	}
}

func serveConfigFromViper(v *viper.Viper) ServeConfig {
	return ServeConfig{
		Address:      v.GetString("serve.address"),
		Port:         v.GetInt("serve.port"),
		Open:         v.GetBool("serve.open"),
		NoAutoreload: v.GetBool("serve.no_autoreload"),
		TLSCertPath:  v.GetString("serve.tls_cert_path"),
		TLSKeyPath:   v.GetString("serve.tls_key_path"),
		ProxyBackend: v.GetString("serve.proxy_backend"),
		ProxyRewrite: v.GetString("serve.proxy_rewrite"),
	}
}

func hooksConfigFromViper(v *viper.Viper) HooksConfig {
	return HooksConfig{
		PreBuild:  hookCommandsFromViper(v, "hooks.pre_build"),
		Build:     hookCommandsFromViper(v, "hooks.build"),
		PostBuild: hookCommandsFromViper(v, "hooks.post_build"),
	}
}

func hookCommandsFromViper(v *viper.Viper, key string) []HookCommand {
	var raw []struct {
		Command string
		Args    []string
		Dir     string
	}
	if err := v.UnmarshalKey(key, &raw); err != nil {
		return nil
	}
	cmds := make([]HookCommand, 0, len(raw))
	for _, r := range raw {
		cmds = append(cmds, HookCommand{Command: r.Command, Args: r.Args, Dir: r.Dir})
	}
	return cmds
}
