package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/carevault/dlt-consent/chaincode/consent/consentgrant"
)

func main() {
	consentChaincode, err := contractapi.NewChaincode(&consentgrant.SmartContract{})
	if err != nil {
		log.Panicf("Error creating ConsentGrant chaincode: %v", err)
	}

	if err := consentChaincode.Start(); err != nil {
		log.Panicf("Error starting ConsentGrant chaincode: %v", err)
	}
}
