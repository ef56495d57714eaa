// Package options holds the command-line and config-file option groups of
// the rsas-discovery binary. Each group registers its flags under a dotted
// prefix (http., serial., discovery., activation., mqtt., trace.) that
// doubles as its key in the config file, and validates itself.
package options
