// Package docker wraps the Docker Engine SDK client with automatic socket
// detection. Generation itself never talks to a container host; the client
// exists for the doctor command's advisory daemon reachability check.
package docker
