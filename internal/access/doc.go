// Package access implements the allow-list gate in front of every chat command.
package access
