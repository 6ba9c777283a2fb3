// Package common provides the data structures shared by the RPC layer of
// dMX: the wire message, the configuration of servers and clients and the
// logger setup.
//
// Key Components:
//
//   - Message: The single structure used for requests and responses. Protocol
//     messages (request, ack, release) carry the Lamport clock of the sender in
//     Owner/Clock and the receiving process in Target. NewProtocolMessage and
//     Message.Protocol convert between the wire form and mutex.Message.
//
//   - MessageType: Enumeration of all message types: the three protocol
//     actions, the status query and the success/error replies.
//
//   - ServerConfig: Configuration of one served process, including its id,
//     the endpoints of all peers, the group id and the transport tuning.
//
//   - ClientConfig: Configuration of the connection to one peer, controlling
//     timeouts, retries and socket options.
//
//   - Logger: Custom implementation of dragonboat's logger.ILogger producing a
//     uniform "LEVEL | name | message" format; InitLoggers sets the level of
//     every named logger of the application.
package common
