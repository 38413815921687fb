// Package zk implements coord.ICoordinator on ZooKeeper using
// github.com/go-zookeeper/zk.
//
// Member nodes are created with FlagEphemeral|FlagSequence and an open ACL.
// Session state changes reported by the client library are forwarded as
// coord.SessionEvent values; after EventExpired all ephemeral nodes of the
// previous session are gone and have to be registered again.
package zk
