// Package transport defines how dMX processes exchange frames. Transports
// are byte oriented: the rpc server and client put serialized
// common.Message values into frames tagged with the group id, and every
// request is answered with exactly one response frame.
//
// Implementations live in the sub packages: tcp and unix build on the framed
// connections of package base, http maps every frame to one POST request.
package transport
