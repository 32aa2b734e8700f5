package naming

import "fmt"

// Naming functions for topology resources.

func Network(topology, unit string) string {
	return fmt.Sprintf("%s-%s", topology, unit)
}

func Subnet(topology, unit, visibility string, offset int) string {
	return fmt.Sprintf("%s-%s-%s-%d", topology, unit, visibility, offset)
}

func RouteTable(topology, unit, visibility string) string {
	return fmt.Sprintf("%s-%s-%s-rt", topology, unit, visibility)
}

func InternetGateway(topology, unit string) string {
	return fmt.Sprintf("%s-%s-igw", topology, unit)
}

func SecurityPolicy(topology, unit string) string {
	return fmt.Sprintf("%s-%s-sg", topology, unit)
}

func Peering(topology, unit string) string {
	return fmt.Sprintf("%s-%s-peering", topology, unit)
}

// StatePrefix is the object key prefix of a topology's state records.
func StatePrefix(topology string) string {
	return topology + "/units/"
}

// StateObject is the object key of a unit's state record in the S3 backend.
func StateObject(topology, unit string) string {
	return fmt.Sprintf("%s%s.json", StatePrefix(topology), unit)
}
