// Package process delivers saga commands to local programs.
package process
