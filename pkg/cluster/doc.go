// Package cluster contains the value objects that describe the cluster
// topology and the unit of work sent alongside steps.
//
//   - [WorkerInfo]: host identity and supported work types, announced once
//   - [DomainShape]: frequency/time extent of one work domain
//   - [WorkDomainSpec]: data column, antenna/correlation selection and domain
//   - [NodeDesc], [ClusterDesc]: node names and the file systems they reach
//
// All types are plain values; they are copied, never shared, across the wire.
package cluster
