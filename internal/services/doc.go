// Package services builds the specforge collaborators from configuration.
//
// Both binaries that do work (the CLI and the Temporal worker) need the same
// tracker, generation client, executor and publisher. Build assembles them
// once; the Registry accessors hand them to package bot or to the workflow
// activities.
package services
