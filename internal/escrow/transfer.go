package escrow

// transferLeg is one token movement inside the enclosing atomic unit.
// A nil signerSeeds means the source owner authorized the leg with its own
// transaction signature; otherwise the leg is authorized on behalf of the
// derived vault authority by re-presenting its seeds.
type transferLeg struct {
	source      *AccountRef
	destination *AccountRef
	authority   *AccountRef
	amount      uint64
	signerSeeds [][]byte
}

// executeTransfers issues the legs in order as nested sub-invocations of the
// token program. No compensation logic lives here: if a later leg fails, the
// host rolls back the whole invocation, earlier legs included.
func (p *Processor) executeTransfers(tokenProgram *AccountRef, legs ...transferLeg) error {
	if err := assertTokenProgram(tokenProgram); err != nil {
		return err
	}
	for _, leg := range legs {
		var err error
		if leg.signerSeeds == nil {
			err = p.token.Transfer(leg.source, leg.destination, leg.authority, leg.amount)
		} else {
			err = p.token.TransferSigned(leg.source, leg.destination, leg.authority, leg.amount, leg.signerSeeds)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
